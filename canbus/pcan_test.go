package canbus

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yiweisong/ace-can/internal/pcan"
)

func TestOpenPCAN(t *testing.T) {
	api := &fakePCAN{}
	be, err := openPCAN(api, 1, 500000, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, be.waiter)

	init, uninit, _ := api.counts()
	assert.Equal(t, 1, init)
	assert.Equal(t, 0, uninit)
	assert.Equal(t, pcan.USBBus1, api.lastHandle)
	assert.Equal(t, pcan.Baud500K, api.lastBaud)

	require.NoError(t, be.close())
	init, uninit, detach := api.counts()
	assert.Equal(t, 1, init)
	assert.Equal(t, 1, uninit)
	assert.Equal(t, 1, detach, "event registration cleared before release")

	// Idempotent.
	require.NoError(t, be.close())
	_, uninit, detach = api.counts()
	assert.Equal(t, 1, uninit)
	assert.Equal(t, 1, detach)
}

func TestOpenPCANInvalidChannel(t *testing.T) {
	for _, channel := range []int{0, 17, -4, 0x1F} {
		api := &fakePCAN{}
		_, err := openPCAN(api, channel, 500000, zap.NewNop())
		require.ErrorContains(t, err, "invalid pcan channel", "channel %d", channel)
		init, uninit, _ := api.counts()
		assert.Zero(t, init, "channel %d", channel)
		assert.Zero(t, uninit, "channel %d", channel)
	}
}

func TestOpenPCANUnsupportedBitrate(t *testing.T) {
	api := &fakePCAN{}
	_, err := openPCAN(api, 1, 123456, zap.NewNop())
	require.ErrorIs(t, err, ErrUnsupportedBitrate)

	// Nothing was opened, so nothing may be torn down.
	init, uninit, _ := api.counts()
	assert.Zero(t, init)
	assert.Zero(t, uninit)
}

func TestOpenPCANInitializeFailure(t *testing.T) {
	api := &fakePCAN{initStatus: pcan.StatusIllHw}
	_, err := openPCAN(api, 1, 500000, zap.NewNop())
	require.ErrorContains(t, err, "CAN_Initialize failed")

	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, uint32(pcan.StatusIllHw), serr.Code)

	_, uninit, _ := api.counts()
	assert.Zero(t, uninit)
}

func TestOpenPCANAttachFailureNonFatal(t *testing.T) {
	api := &fakePCAN{attachErr: assert.AnError}
	be, err := openPCAN(api, 1, 500000, zap.NewNop())
	require.NoError(t, err, "missing receive event must not fail the open")
	assert.Nil(t, be.waiter)
	require.NoError(t, be.close())

	_, _, detach := api.counts()
	assert.Zero(t, detach, "nothing to detach")
}

func TestOpenPCANDirectHandle(t *testing.T) {
	api := &fakePCAN{}
	be, err := openPCAN(api, 0x51C, 250000, zap.NewNop())
	require.NoError(t, err)
	defer be.close()
	assert.Equal(t, pcan.Handle(0x51C), api.lastHandle)
}

func TestPCANSendTruncatesAndClassifies(t *testing.T) {
	api := &fakePCAN{}
	be, err := openPCAN(api, 1, 500000, zap.NewNop())
	require.NoError(t, err)
	defer be.close()

	payload := bytes.Repeat([]byte{0x5A}, 9)
	require.Nil(t, be.send(Frame{ID: 0x1FFFFFFF, Data: payload}))
	require.Nil(t, be.send(Frame{ID: 0x7DF, Data: []byte{0x02, 0x01, 0x0C}}))

	written := api.snapshotWritten()
	require.Len(t, written, 2)

	ext := written[0]
	assert.Equal(t, uint32(0x1FFFFFFF), ext.ID)
	assert.Equal(t, pcan.MsgTypeExtended, ext.Type)
	assert.Equal(t, uint8(MaxClassicData), ext.Len, "9 bytes truncated to 8")
	assert.Equal(t, payload[:MaxClassicData], ext.Data[:])

	std := written[1]
	assert.Equal(t, pcan.MsgTypeStandard, std.Type)
	assert.Equal(t, uint8(3), std.Len)
}

func TestPCANSendFailure(t *testing.T) {
	api := &fakePCAN{writeStatus: pcan.StatusXmtFull}
	be, err := openPCAN(api, 1, 500000, zap.NewNop())
	require.NoError(t, err)
	defer be.close()

	serr := be.send(Frame{ID: 0x100, Data: []byte{1}})
	require.NotNil(t, serr)
	assert.Equal(t, uint32(pcan.StatusXmtFull), serr.Code)
	assert.Contains(t, serr.Message, "Transmit buffer")
}

func TestPCANStatusTextHexFallback(t *testing.T) {
	api := &fakePCAN{}
	assert.Contains(t, pcanStatusText(api, "op", pcan.StatusQOverrun), "PCAN error 0x40")
}
