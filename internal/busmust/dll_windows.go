//go:build windows

package busmust

import (
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

const languageEnglish = 0x09

var (
	loadOnce sync.Once
	loadErr  error
	dllAPI   *dll
)

// Load binds bmapi.dll once per process and returns the live SDK.
func Load() (API, error) {
	loadOnce.Do(func() {
		d := &dll{mod: windows.NewLazySystemDLL("bmapi.dll")}
		if err := d.mod.Load(); err != nil {
			loadErr = err
			return
		}
		d.init = d.mod.NewProc("BM_Init")
		d.uninit = d.mod.NewProc("BM_UnInit")
		d.enumerate = d.mod.NewProc("BM_Enumerate")
		d.openEx = d.mod.NewProc("BM_OpenEx")
		d.close = d.mod.NewProc("BM_Close")
		d.getNotification = d.mod.NewProc("BM_GetNotification")
		d.waitForNotifications = d.mod.NewProc("BM_WaitForNotifications")
		d.readCanMessage = d.mod.NewProc("BM_ReadCanMessage")
		d.writeCanMessage = d.mod.NewProc("BM_WriteCanMessage")
		d.getErrorText = d.mod.NewProc("BM_GetErrorText")
		dllAPI = d
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return dllAPI, nil
}

type dll struct {
	mod                  *windows.LazyDLL
	init                 *windows.LazyProc
	uninit               *windows.LazyProc
	enumerate            *windows.LazyProc
	openEx               *windows.LazyProc
	close                *windows.LazyProc
	getNotification      *windows.LazyProc
	waitForNotifications *windows.LazyProc
	readCanMessage       *windows.LazyProc
	writeCanMessage      *windows.LazyProc
	getErrorText         *windows.LazyProc
}

func (d *dll) Init() Status {
	r, _, _ := d.init.Call()
	return Status(r)
}

func (d *dll) UnInit() Status {
	r, _, _ := d.uninit.Call()
	return Status(r)
}

func (d *dll) Enumerate(infos []ChannelInfo) (int, Status) {
	n := int32(len(infos))
	var p unsafe.Pointer
	if len(infos) > 0 {
		p = unsafe.Pointer(&infos[0])
	}
	r, _, _ := d.enumerate.Call(uintptr(p), uintptr(unsafe.Pointer(&n)))
	return int(n), Status(r)
}

func (d *dll) OpenEx(info *ChannelInfo, mode CanMode, tres TerminalResistor, bitrate *Bitrate) (ChannelHandle, Status) {
	var h ChannelHandle
	r, _, _ := d.openEx.Call(
		uintptr(unsafe.Pointer(&h)),
		uintptr(unsafe.Pointer(info)),
		uintptr(mode),
		uintptr(tres),
		uintptr(unsafe.Pointer(bitrate)),
		0, // no RX filters
		0,
	)
	return h, Status(r)
}

func (d *dll) Close(h ChannelHandle) Status {
	r, _, _ := d.close.Call(uintptr(h))
	return Status(r)
}

func (d *dll) GetNotification(h ChannelHandle) (NotificationHandle, Status) {
	var n NotificationHandle
	r, _, _ := d.getNotification.Call(uintptr(h), uintptr(unsafe.Pointer(&n)))
	return n, Status(r)
}

func (d *dll) WaitForNotifications(hs []NotificationHandle, timeout time.Duration) int {
	if len(hs) == 0 {
		return -1
	}
	r, _, _ := d.waitForNotifications.Call(
		uintptr(unsafe.Pointer(&hs[0])),
		uintptr(len(hs)),
		uintptr(int32(timeout/time.Millisecond)),
	)
	return int(int32(r))
}

func (d *dll) ReadCanMessage(h ChannelHandle) (CanMessage, Status) {
	var msg CanMessage
	var channel, timestamp uint32
	r, _, _ := d.readCanMessage.Call(
		uintptr(h),
		uintptr(unsafe.Pointer(&msg)),
		uintptr(unsafe.Pointer(&channel)),
		uintptr(unsafe.Pointer(&timestamp)),
	)
	return msg, Status(r)
}

func (d *dll) WriteCanMessage(h ChannelHandle, m *CanMessage, timeout time.Duration) Status {
	var timestamp uint32
	r, _, _ := d.writeCanMessage.Call(
		uintptr(h),
		uintptr(unsafe.Pointer(m)),
		0, // channel
		uintptr(int32(timeout/time.Millisecond)),
		uintptr(unsafe.Pointer(&timestamp)),
	)
	return Status(r)
}

func (d *dll) ErrorText(st Status) string {
	var buf [256]byte
	d.getErrorText.Call(
		uintptr(st),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		languageEnglish,
	)
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf[:])
}
