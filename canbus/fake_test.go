package canbus

import (
	"sync"
	"time"

	"github.com/yiweisong/ace-can/internal/busmust"
	"github.com/yiweisong/ace-can/internal/pcan"
)

// fakeBusmust is a recording in-memory BMAPI double. Zero values behave like
// a healthy SDK with the channels configured in channels.
type fakeBusmust struct {
	mu sync.Mutex

	initStatus  busmust.Status
	enumStatus  busmust.Status
	openStatus  busmust.Status
	notifStatus busmust.Status
	writeStatus busmust.Status
	readStatus  busmust.Status // status after rx queue is exhausted

	channels    []busmust.ChannelInfo
	reportTotal int // when > 0, Enumerate always reports this count

	rx      []busmust.CanMessage
	written []busmust.CanMessage

	initCalls   int
	uninitCalls int
	enumCalls   int
	closeCalls  int
	nextHandle  busmust.ChannelHandle
}

func canChannel(name string) busmust.ChannelInfo {
	var ci busmust.ChannelInfo
	copy(ci.RawName[:], name)
	ci.Cap = busmust.CapCAN | busmust.CapCANFD
	return ci
}

func canChannels(names ...string) []busmust.ChannelInfo {
	infos := make([]busmust.ChannelInfo, 0, len(names))
	for _, n := range names {
		infos = append(infos, canChannel(n))
	}
	return infos
}

func (f *fakeBusmust) Init() busmust.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return f.initStatus
}

func (f *fakeBusmust) UnInit() busmust.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uninitCalls++
	return busmust.StatusOK
}

func (f *fakeBusmust) Enumerate(infos []busmust.ChannelInfo) (int, busmust.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enumCalls++
	if f.enumStatus != busmust.StatusOK {
		return 0, f.enumStatus
	}
	n := len(f.channels)
	if f.reportTotal > 0 {
		n = f.reportTotal
	}
	if n <= len(infos) {
		copy(infos, f.channels)
	}
	return n, busmust.StatusOK
}

func (f *fakeBusmust) OpenEx(info *busmust.ChannelInfo, mode busmust.CanMode, tres busmust.TerminalResistor, bitrate *busmust.Bitrate) (busmust.ChannelHandle, busmust.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openStatus != busmust.StatusOK {
		return 0, f.openStatus
	}
	f.nextHandle++
	return f.nextHandle, busmust.StatusOK
}

func (f *fakeBusmust) Close(h busmust.ChannelHandle) busmust.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return busmust.StatusOK
}

func (f *fakeBusmust) GetNotification(h busmust.ChannelHandle) (busmust.NotificationHandle, busmust.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifStatus != busmust.StatusOK {
		return 0, f.notifStatus
	}
	return busmust.NotificationHandle(h) + 0x1000, busmust.StatusOK
}

func (f *fakeBusmust) WaitForNotifications(hs []busmust.NotificationHandle, timeout time.Duration) int {
	f.mu.Lock()
	pending := len(f.rx) > 0 || f.readStatus != busmust.StatusOK
	f.mu.Unlock()
	if pending {
		return 0
	}
	time.Sleep(time.Millisecond)
	return -1
}

func (f *fakeBusmust) ReadCanMessage(h busmust.ChannelHandle) (busmust.CanMessage, busmust.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rx) == 0 {
		if f.readStatus != busmust.StatusOK {
			st := f.readStatus
			f.readStatus = busmust.StatusOK // report the failure once
			return busmust.CanMessage{}, st
		}
		return busmust.CanMessage{}, busmust.StatusQRcvEmpty
	}
	msg := f.rx[0]
	f.rx = f.rx[1:]
	return msg, busmust.StatusOK
}

func (f *fakeBusmust) WriteCanMessage(h busmust.ChannelHandle, m *busmust.CanMessage, timeout time.Duration) busmust.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeStatus != busmust.StatusOK {
		return f.writeStatus
	}
	f.written = append(f.written, *m)
	return busmust.StatusOK
}

func (f *fakeBusmust) ErrorText(st busmust.Status) string {
	switch st {
	case busmust.StatusQXmtFull:
		return "Transmit queue is full"
	case busmust.StatusHwInUse:
		return "Hardware is in use"
	}
	return ""
}

func (f *fakeBusmust) snapshotWritten() []busmust.CanMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]busmust.CanMessage(nil), f.written...)
}

func (f *fakeBusmust) counts() (init, uninit, enum, close int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls, f.uninitCalls, f.enumCalls, f.closeCalls
}

// fakePCAN is a recording in-memory PCANBasic double.
type fakePCAN struct {
	mu sync.Mutex

	initStatus  pcan.Status
	writeStatus pcan.Status
	readStatus  pcan.Status // status after rx queue is exhausted
	attachErr   error

	rx      []pcan.Msg
	written []pcan.Msg

	initCalls   int
	uninitCalls int
	detachCalls int
	lastHandle  pcan.Handle
	lastBaud    pcan.Baudrate
}

func (f *fakePCAN) Initialize(h pcan.Handle, baud pcan.Baudrate) pcan.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	f.lastHandle = h
	f.lastBaud = baud
	return f.initStatus
}

func (f *fakePCAN) Uninitialize(h pcan.Handle) pcan.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uninitCalls++
	return pcan.StatusOK
}

func (f *fakePCAN) Read(h pcan.Handle) (pcan.Msg, pcan.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rx) == 0 {
		if f.readStatus != pcan.StatusOK {
			st := f.readStatus
			f.readStatus = pcan.StatusOK
			return pcan.Msg{}, st
		}
		return pcan.Msg{}, pcan.StatusQRcvEmpty
	}
	msg := f.rx[0]
	f.rx = f.rx[1:]
	return msg, pcan.StatusOK
}

func (f *fakePCAN) Write(h pcan.Handle, m *pcan.Msg) pcan.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeStatus != pcan.StatusOK {
		return f.writeStatus
	}
	f.written = append(f.written, *m)
	return pcan.StatusOK
}

func (f *fakePCAN) AttachReceiveEvent(h pcan.Handle) (pcan.ReceiveWaiter, error) {
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	return &fakeWaiter{pcan: f}, nil
}

func (f *fakePCAN) DetachReceiveEvent(h pcan.Handle, w pcan.ReceiveWaiter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detachCalls++
}

func (f *fakePCAN) ErrorText(st pcan.Status) string {
	switch st {
	case pcan.StatusXmtFull:
		return "Transmit buffer in CAN controller is full"
	case pcan.StatusBusHeavy:
		return "Bus error: an error counter reached the 'heavy' limit"
	}
	return ""
}

func (f *fakePCAN) snapshotWritten() []pcan.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pcan.Msg(nil), f.written...)
}

func (f *fakePCAN) counts() (init, uninit, detach int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls, f.uninitCalls, f.detachCalls
}

// fakeWaiter signals ready whenever the fake has frames queued.
type fakeWaiter struct {
	pcan    *fakePCAN
	closed  bool
	waitErr error
}

func (w *fakeWaiter) Wait(timeout time.Duration) (bool, error) {
	if w.waitErr != nil {
		return false, w.waitErr
	}
	w.pcan.mu.Lock()
	pending := len(w.pcan.rx) > 0 || w.pcan.readStatus != pcan.StatusOK
	w.pcan.mu.Unlock()
	if pending {
		return true, nil
	}
	time.Sleep(time.Millisecond)
	return false, nil
}

func (w *fakeWaiter) Close() error {
	w.closed = true
	return nil
}

// Loader swaps for Bus-level tests.

func useBusmust(t testingCleanup, api busmust.API) {
	prev := loadBusmust
	loadBusmust = func() (busmust.API, error) { return api, nil }
	t.Cleanup(func() { loadBusmust = prev })
}

func usePCAN(t testingCleanup, api pcan.API) {
	prev := loadPCAN
	loadPCAN = func() (pcan.API, error) { return api, nil }
	t.Cleanup(func() { loadPCAN = prev })
}

type testingCleanup interface {
	Cleanup(func())
}
