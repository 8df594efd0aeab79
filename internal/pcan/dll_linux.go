//go:build linux

package pcan

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

const (
	paramReceiveEvent = 0x03 // PCAN_RECEIVE_EVENT
	languageEnglish   = 0x09
)

var (
	loadOnce sync.Once
	loadErr  error
	libAPI   *sharedLib
)

// Load binds libpcanbasic.so once per process and returns the live SDK.
func Load() (API, error) {
	loadOnce.Do(func() {
		handle, err := purego.Dlopen("libpcanbasic.so", purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			loadErr = fmt.Errorf("pcan: load libpcanbasic.so: %w", err)
			return
		}
		l := &sharedLib{}
		purego.RegisterLibFunc(&l.initialize, handle, "CAN_Initialize")
		purego.RegisterLibFunc(&l.uninitialize, handle, "CAN_Uninitialize")
		purego.RegisterLibFunc(&l.read, handle, "CAN_Read")
		purego.RegisterLibFunc(&l.write, handle, "CAN_Write")
		purego.RegisterLibFunc(&l.getValue, handle, "CAN_GetValue")
		purego.RegisterLibFunc(&l.getErrorText, handle, "CAN_GetErrorText")
		libAPI = l
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return libAPI, nil
}

// sharedLib calls PCANBasic through dlopen'd function pointers.
type sharedLib struct {
	initialize   func(uint16, uint16, uint8, uint32, uint16) uint32
	uninitialize func(uint16) uint32
	read         func(uint16, unsafe.Pointer, unsafe.Pointer) uint32
	write        func(uint16, unsafe.Pointer) uint32
	getValue     func(uint16, uint8, unsafe.Pointer, uint32) uint32
	getErrorText func(uint32, uint16, unsafe.Pointer) uint32
}

func (l *sharedLib) Initialize(h Handle, baud Baudrate) Status {
	// Hardware type/port/interrupt are only meaningful for legacy
	// non-plug-and-play channels.
	return Status(l.initialize(uint16(h), uint16(baud), 0, 0, 0))
}

func (l *sharedLib) Uninitialize(h Handle) Status {
	return Status(l.uninitialize(uint16(h)))
}

func (l *sharedLib) Read(h Handle) (Msg, Status) {
	var msg Msg
	st := l.read(uint16(h), unsafe.Pointer(&msg), nil)
	return msg, Status(st)
}

func (l *sharedLib) Write(h Handle, m *Msg) Status {
	return Status(l.write(uint16(h), unsafe.Pointer(m)))
}

// AttachReceiveEvent reads the channel's receive-ready descriptor and wraps
// it in a poller. The descriptor belongs to the driver.
func (l *sharedLib) AttachReceiveEvent(h Handle) (ReceiveWaiter, error) {
	var fd int32
	st := l.getValue(uint16(h), paramReceiveEvent, unsafe.Pointer(&fd), uint32(unsafe.Sizeof(fd)))
	if Status(st) != StatusOK {
		return nil, fmt.Errorf("pcan: CAN_GetValue(PCAN_RECEIVE_EVENT): %s", l.ErrorText(Status(st)))
	}
	if fd < 0 {
		return nil, fmt.Errorf("pcan: no receive descriptor for channel 0x%X", uint16(h))
	}
	return NewFDWaiter(int(fd)), nil
}

// DetachReceiveEvent has nothing to undo: the descriptor was only read,
// never registered, and stays with the driver.
func (l *sharedLib) DetachReceiveEvent(h Handle, w ReceiveWaiter) {}

func (l *sharedLib) ErrorText(st Status) string {
	var buf [256]byte
	if Status(l.getErrorText(uint32(st), languageEnglish, unsafe.Pointer(&buf[0]))) != StatusOK {
		return ""
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf[:])
}
