//go:build windows

package pcan

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	paramReceiveEvent = 0x03 // PCAN_RECEIVE_EVENT
	languageEnglish   = 0x09
)

var (
	loadOnce sync.Once
	loadErr  error
	dllAPI   *dll
)

// Load binds PCANBasic.dll once per process and returns the live SDK.
func Load() (API, error) {
	loadOnce.Do(func() {
		d := &dll{mod: windows.NewLazySystemDLL("PCANBasic.dll")}
		if err := d.mod.Load(); err != nil {
			loadErr = err
			return
		}
		d.initialize = d.mod.NewProc("CAN_Initialize")
		d.uninitialize = d.mod.NewProc("CAN_Uninitialize")
		d.read = d.mod.NewProc("CAN_Read")
		d.write = d.mod.NewProc("CAN_Write")
		d.getValue = d.mod.NewProc("CAN_GetValue")
		d.setValue = d.mod.NewProc("CAN_SetValue")
		d.getErrorText = d.mod.NewProc("CAN_GetErrorText")
		dllAPI = d
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return dllAPI, nil
}

type dll struct {
	mod          *windows.LazyDLL
	initialize   *windows.LazyProc
	uninitialize *windows.LazyProc
	read         *windows.LazyProc
	write        *windows.LazyProc
	getValue     *windows.LazyProc
	setValue     *windows.LazyProc
	getErrorText *windows.LazyProc
}

func (d *dll) Initialize(h Handle, baud Baudrate) Status {
	// Hardware type/port/interrupt are only meaningful for legacy
	// non-plug-and-play channels.
	r, _, _ := d.initialize.Call(uintptr(h), uintptr(baud), 0, 0, 0)
	return Status(r)
}

func (d *dll) Uninitialize(h Handle) Status {
	r, _, _ := d.uninitialize.Call(uintptr(h))
	return Status(r)
}

func (d *dll) Read(h Handle) (Msg, Status) {
	var msg Msg
	r, _, _ := d.read.Call(uintptr(h), uintptr(unsafe.Pointer(&msg)), 0)
	return msg, Status(r)
}

func (d *dll) Write(h Handle, m *Msg) Status {
	r, _, _ := d.write.Call(uintptr(h), uintptr(unsafe.Pointer(m)))
	return Status(r)
}

// AttachReceiveEvent creates an auto-reset event object and registers it as
// the channel's receive event.
func (d *dll) AttachReceiveEvent(h Handle) (ReceiveWaiter, error) {
	ev, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		return nil, err
	}
	value := uintptr(ev)
	r, _, _ := d.setValue.Call(
		uintptr(h),
		paramReceiveEvent,
		uintptr(unsafe.Pointer(&value)),
		unsafe.Sizeof(value),
	)
	if Status(r) != StatusOK {
		windows.CloseHandle(ev)
		return nil, fmt.Errorf("pcan: CAN_SetValue(PCAN_RECEIVE_EVENT): %s", d.ErrorText(Status(r)))
	}
	return &eventWaiter{event: ev}, nil
}

// DetachReceiveEvent clears the channel's event registration; the waiter is
// closed separately.
func (d *dll) DetachReceiveEvent(h Handle, w ReceiveWaiter) {
	var null uintptr
	d.setValue.Call(
		uintptr(h),
		paramReceiveEvent,
		uintptr(unsafe.Pointer(&null)),
		unsafe.Sizeof(null),
	)
}

func (d *dll) ErrorText(st Status) string {
	var buf [256]byte
	r, _, _ := d.getErrorText.Call(uintptr(st), languageEnglish, uintptr(unsafe.Pointer(&buf[0])))
	if Status(r) != StatusOK {
		return ""
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf[:])
}
