package canbus

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yiweisong/ace-can/internal/busmust"
)

// Busmust pacing and enumeration parameters.
const (
	busmustWriteTimeout = 100 * time.Millisecond
	// Fallback drain cadence when no notification handle is available.
	busmustPollPause = 5 * time.Millisecond
	// Enumeration buffer growth: start small, double, give up after a few
	// rounds. Handles the device count changing between attempts without
	// assuming an upper bound.
	busmustEnumInitial  = 16
	busmustEnumAttempts = 4
)

// busmustSessions counts open busmust sessions across the process. The first
// session runs BM_Init, the last one closed runs BM_UnInit.
var busmustSessions atomic.Int32

// busmustBackend drives one BMAPI channel: enumeration-based open, queued
// reads behind a notification handle, FD-sized payloads.
type busmustBackend struct {
	api          busmust.API
	log          *zap.Logger
	handle       busmust.ChannelHandle
	notification busmust.NotificationHandle
	// registered marks that this session holds a reference on the
	// process-wide SDK runtime.
	registered bool
	closed     bool
}

func openBusmust(api busmust.API, channel, bitrate int, log *zap.Logger) (*busmustBackend, error) {
	if channel < 0 {
		return nil, fmt.Errorf("canbus: busmust channel must be >= 0, got %d", channel)
	}
	be := &busmustBackend{api: api, log: log}

	// Any failure from here on must unwind the partial open: release the
	// channel handle if acquired and drop the runtime reference.
	fail := func(err error) (*busmustBackend, error) {
		be.release()
		return nil, err
	}

	if busmustSessions.Add(1) == 1 {
		if st := api.Init(); st != busmust.StatusOK {
			busmustSessions.Add(-1)
			return nil, be.statusError("BM_Init failed", st)
		}
	}
	be.registered = true

	cfg, ok := busmustBitrate(bitrate)
	if !ok {
		return fail(fmt.Errorf("%w: busmust bitrate must be a positive multiple of 1000 bit/s, got %d", ErrUnsupportedBitrate, bitrate))
	}

	channels, st, ok := enumerateBusmust(api)
	if st != busmust.StatusOK {
		return fail(be.statusError("BM_Enumerate failed", st))
	}
	if !ok {
		return fail(fmt.Errorf("canbus: busmust enumeration ran out of buffer space"))
	}
	if len(channels) == 0 {
		return fail(fmt.Errorf("canbus: no busmust channels detected"))
	}
	if channel >= len(channels) {
		return fail(fmt.Errorf("canbus: busmust channel %d out of range, %d channel(s) enumerated", channel, len(channels)))
	}
	info := channels[channel]
	if !info.SupportsCAN() {
		return fail(fmt.Errorf("canbus: busmust channel %d (%s) does not support CAN", channel, info.Name()))
	}

	handle, st := api.OpenEx(&info, busmust.CanModeNormal, busmust.TerminalResistor120, &cfg)
	if st != busmust.StatusOK || handle == 0 {
		return fail(be.statusError("BM_OpenEx failed", st))
	}
	be.handle = handle

	notification, st := api.GetNotification(handle)
	if st != busmust.StatusOK || notification == 0 {
		return fail(be.statusError("BM_GetNotification failed", st))
	}
	be.notification = notification

	log.Debug("busmust channel open",
		zap.String("device", info.Name()),
		zap.Int("channel", channel))
	return be, nil
}

// busmustBitrate converts bits/sec to the SDK's kbps record with the default
// 75% sample points. Only exact kbps multiples are representable.
func busmustBitrate(bitrate int) (busmust.Bitrate, bool) {
	if bitrate <= 0 || bitrate%1000 != 0 {
		return busmust.Bitrate{}, false
	}
	kbps := bitrate / 1000
	if kbps == 0 || kbps > 0xFFFF {
		return busmust.Bitrate{}, false
	}
	return busmust.Bitrate{
		NBitrate:   uint16(kbps),
		NSamplePos: 75,
		DSamplePos: 75,
	}, true
}

// enumerateBusmust retries with a doubling buffer until the reported count
// fits. ok is false when the attempts were exhausted or the SDK errored.
func enumerateBusmust(api busmust.API) ([]busmust.ChannelInfo, busmust.Status, bool) {
	capacity := busmustEnumInitial
	for attempt := 0; attempt < busmustEnumAttempts; attempt++ {
		buf := make([]busmust.ChannelInfo, capacity)
		n, st := api.Enumerate(buf)
		if st != busmust.StatusOK {
			return nil, st, false
		}
		if n <= len(buf) {
			return buf[:n], busmust.StatusOK, true
		}
		capacity *= 2
	}
	return nil, busmust.StatusOK, false
}

func (be *busmustBackend) send(f Frame) *Error {
	dlc := len(f.Data)
	if dlc > MaxFDData {
		dlc = MaxFDData
	}
	var msg busmust.CanMessage
	msg.SetTxHeader(f.ID, f.ID > maxStdID, dlc)
	copy(msg.Payload[:], f.Data[:dlc])

	if st := be.api.WriteCanMessage(be.handle, &msg, busmustWriteTimeout); st != busmust.StatusOK {
		return be.statusError("BM_WriteCanMessage failed", st)
	}
	return nil
}

func (be *busmustBackend) waitAndDrain(s drainSink) bool {
	if be.notification != 0 {
		// A wakeup signals activity, not necessarily a pending frame; a
		// negative result is a timeout or wait failure, retried next cycle.
		hs := []busmust.NotificationHandle{be.notification}
		if be.api.WaitForNotifications(hs, recvWaitTimeout) < 0 {
			return true
		}
	} else {
		if !s.pause(busmustPollPause) {
			return true
		}
	}

	for !s.stopping() {
		msg, st := be.api.ReadCanMessage(be.handle)
		switch st {
		case busmust.StatusOK:
			dlc := msg.DLC()
			if dlc > MaxFDData {
				dlc = MaxFDData
			}
			f := Frame{
				ID:       msg.CanID(),
				Extended: msg.Extended(),
				Data:     append([]byte(nil), msg.Payload[:dlc]...),
			}
			if !s.deliver(f) {
				return false
			}
		case busmust.StatusQRcvEmpty:
			// Queue drained, pass complete.
			return true
		default:
			s.fault(uint32(st), be.statusText("BM_ReadCanMessage failed", st))
			s.pause(recvErrorPause)
			return true
		}
	}
	return true
}

// close releases the channel, drops the notification reference and gives up
// this session's hold on the process-wide runtime, uninitializing it when
// this was the last session.
func (be *busmustBackend) close() error {
	if be.closed {
		return nil
	}
	be.closed = true
	be.release()
	return nil
}

func (be *busmustBackend) release() {
	if be.handle != 0 {
		be.api.Close(be.handle)
		be.handle = 0
	}
	be.notification = 0
	if be.registered {
		if busmustSessions.Add(-1) == 0 {
			be.api.UnInit()
		}
		be.registered = false
	}
}

func (be *busmustBackend) statusText(op string, st busmust.Status) string {
	text := be.api.ErrorText(st)
	if text == "" {
		text = fmt.Sprintf("BM error 0x%X", uint32(st))
	}
	return op + ": " + text
}

func (be *busmustBackend) statusError(op string, st busmust.Status) *Error {
	return &Error{Code: uint32(st), Message: be.statusText(op, st)}
}
