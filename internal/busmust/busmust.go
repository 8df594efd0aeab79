// Package busmust is a thin Go binding for the Busmust BMAPI CAN SDK.
//
// The package exposes the SDK operations the transport layer needs through
// the API interface so that the adapter can run against a recording fake in
// tests. On Windows the Load factory binds bmapi.dll; on other platforms it
// reports the SDK as unavailable.
package busmust

import (
	"time"
)

// Status is a BMAPI operation status code (BM_StatusTypeDef).
type Status uint32

const (
	StatusOK         Status = 0x00000
	StatusQRcvEmpty  Status = 0x00020 // receive queue empty, normal drain termination
	StatusQXmtFull   Status = 0x00080
	StatusHwInUse    Status = 0x00400
	StatusResource   Status = 0x02000
	StatusUnknown    Status = 0x10000
	StatusInitialize Status = 0x4000000
)

// Capability bits reported in ChannelInfo.Cap.
const (
	CapCAN   uint16 = 0x0002
	CapCANFD uint16 = 0x0004
)

// CanMode selects the channel operating mode for OpenEx.
type CanMode uint32

const CanModeNormal CanMode = 0x00

// TerminalResistor selects the built-in termination for OpenEx.
type TerminalResistor uint32

const (
	TerminalResistor120      TerminalResistor = 120
	TerminalResistorDisabled TerminalResistor = 0xFFFF
)

// ChannelHandle is an opened channel; NotificationHandle is a waitable event
// tied to a channel. Both are opaque SDK pointers.
type (
	ChannelHandle      uintptr
	NotificationHandle uintptr
)

// ChannelInfo mirrors BM_ChannelInfoTypeDef byte for byte (108 bytes).
// It is filled by Enumerate and passed back to OpenEx unmodified.
type ChannelInfo struct {
	RawName    [64]byte
	SN         [16]byte
	UID        [12]byte
	RawVersion [4]byte
	VID        uint16
	PID        uint16
	Port       uint16
	Cap        uint16
	Addr       [4]byte
}

// Name returns the device display name.
func (ci *ChannelInfo) Name() string {
	for i, b := range ci.RawName {
		if b == 0 {
			return string(ci.RawName[:i])
		}
	}
	return string(ci.RawName[:])
}

// SupportsCAN reports whether the channel can carry classic CAN or CAN-FD
// traffic.
func (ci *ChannelInfo) SupportsCAN() bool {
	return ci.Cap&(CapCAN|CapCANFD) != 0
}

// Bitrate mirrors BM_BitrateTypeDef (12 bytes). Rates are in kbps.
type Bitrate struct {
	NBitrate   uint16
	DBitrate   uint16
	NSamplePos uint8
	DSamplePos uint8
	ClockFreq  uint8
	Reserved   uint8
	NBTR0      uint8
	NBTR1      uint8
	DBTR0      uint8
	DBTR1      uint8
}

// CanMessage mirrors BM_CanMessageTypeDef (72 bytes). ID and Ctrl are kept as
// plain words; the bit layout is reached through the accessors in msgid.go
// rather than through struct bit-fields, which Go does not have and which are
// not portable anyway.
type CanMessage struct {
	ID      uint32
	Ctrl    uint32
	Payload [64]byte
}

// API is the slice of BMAPI consumed by the transport layer.
//
// Enumerate fills infos and returns the number of channels present on the
// system, which may exceed len(infos); the caller grows its buffer and
// retries. WaitForNotifications returns the signalled handle index or a
// negative value on timeout/failure.
type API interface {
	Init() Status
	UnInit() Status
	Enumerate(infos []ChannelInfo) (int, Status)
	OpenEx(info *ChannelInfo, mode CanMode, tres TerminalResistor, bitrate *Bitrate) (ChannelHandle, Status)
	Close(h ChannelHandle) Status
	GetNotification(h ChannelHandle) (NotificationHandle, Status)
	WaitForNotifications(hs []NotificationHandle, timeout time.Duration) int
	ReadCanMessage(h ChannelHandle) (CanMessage, Status)
	WriteCanMessage(h ChannelHandle, m *CanMessage, timeout time.Duration) Status
	ErrorText(st Status) string
}
