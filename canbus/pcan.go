package canbus

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yiweisong/ace-can/internal/pcan"
)

// Pause after draining the PCAN queue empty; the poll-fallback cadence when
// no receive event could be attached.
const pcanEmptyPause = 2 * time.Millisecond

// pcanBackend drives one PCANBasic channel: direct-handle open, classic
// 8-byte frames, receive-event wait with a polling fallback.
type pcanBackend struct {
	api    pcan.API
	log    *zap.Logger
	handle pcan.Handle
	// waiter is nil when no receive event could be attached at open time;
	// the drain then runs on a fixed polling cadence.
	waiter pcan.ReceiveWaiter
}

func openPCAN(api pcan.API, channel, bitrate int, log *zap.Logger) (*pcanBackend, error) {
	handle := pcan.ResolveHandle(channel)
	if handle == pcan.NoneBus {
		return nil, fmt.Errorf("canbus: invalid pcan channel %d", channel)
	}
	baud, ok := pcan.BaudrateFor(bitrate)
	if !ok {
		return nil, fmt.Errorf("%w: pcan has no rate for %d bit/s", ErrUnsupportedBitrate, bitrate)
	}

	if st := api.Initialize(handle, baud); st != pcan.StatusOK {
		return nil, pcanStatusError(api, "CAN_Initialize failed", st)
	}
	be := &pcanBackend{api: api, log: log, handle: handle}

	// Losing the receive event costs only wait efficiency, never the open.
	waiter, err := api.AttachReceiveEvent(handle)
	if err != nil {
		log.Debug("pcan receive event unavailable, polling instead", zap.Error(err))
	} else {
		be.waiter = waiter
	}

	log.Debug("pcan channel open",
		zap.Int("channel", channel),
		zap.Uint16("handle", uint16(handle)))
	return be, nil
}

func (be *pcanBackend) send(f Frame) *Error {
	dlc := len(f.Data)
	if dlc > MaxClassicData {
		dlc = MaxClassicData
	}
	msg := pcan.Msg{
		ID:   f.ID,
		Type: pcan.MsgTypeStandard,
		Len:  uint8(dlc),
	}
	if f.ID > maxStdID {
		msg.Type = pcan.MsgTypeExtended
	}
	copy(msg.Data[:], f.Data[:dlc])

	if st := be.api.Write(be.handle, &msg); st != pcan.StatusOK {
		return pcanStatusError(be.api, "CAN_Write failed", st)
	}
	return nil
}

func (be *pcanBackend) waitAndDrain(s drainSink) bool {
	if be.waiter != nil {
		ready, err := be.waiter.Wait(recvWaitTimeout)
		if err != nil {
			s.fault(0, err.Error())
			s.pause(recvErrorPause)
			return true
		}
		if !ready {
			return true
		}
	}

	for !s.stopping() {
		msg, st := be.api.Read(be.handle)
		switch st {
		case pcan.StatusOK:
			extended := msg.Type&pcan.MsgTypeExtended != 0
			id := msg.ID
			if !extended {
				id &= maxStdID
			}
			dlc := int(msg.Len)
			if dlc > MaxClassicData {
				dlc = MaxClassicData
			}
			f := Frame{
				ID:       id,
				Extended: extended,
				Data:     append([]byte(nil), msg.Data[:dlc]...),
			}
			if !s.deliver(f) {
				return false
			}
		case pcan.StatusQRcvEmpty:
			// Queue drained; the short pause doubles as the polling
			// cadence when no receive event exists.
			s.pause(pcanEmptyPause)
			return true
		default:
			s.fault(uint32(st), pcanStatusText(be.api, "CAN_Read failed", st))
			s.pause(recvErrorPause)
			return true
		}
	}
	return true
}

// close detaches the receive event before releasing it, then uninitializes
// the channel. Idempotent.
func (be *pcanBackend) close() error {
	if be.waiter != nil {
		be.api.DetachReceiveEvent(be.handle, be.waiter)
		be.waiter.Close()
		be.waiter = nil
	}
	if be.handle != pcan.NoneBus {
		be.api.Uninitialize(be.handle)
		be.handle = pcan.NoneBus
	}
	return nil
}

func pcanStatusText(api pcan.API, op string, st pcan.Status) string {
	text := api.ErrorText(st)
	if text == "" {
		text = fmt.Sprintf("PCAN error 0x%X", uint32(st))
	}
	return op + ": " + text
}

func pcanStatusError(api pcan.API, op string, st pcan.Status) *Error {
	return &Error{Code: uint32(st), Message: pcanStatusText(api, op, st)}
}
