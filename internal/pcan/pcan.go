// Package pcan is a thin Go binding for the PEAK PCANBasic CAN SDK.
//
// The adapter consumes the API interface; tests substitute a fake. On
// Windows the Load factory binds PCANBasic.dll, elsewhere it reports the SDK
// as unavailable. The receive-ready signal (an auto-reset event object on
// Windows, a pollable descriptor on unix) is abstracted as a ReceiveWaiter.
package pcan

import (
	"time"
)

// Handle identifies a PCAN channel (TPCANHandle).
type Handle uint16

const (
	NoneBus Handle = 0x00
	USBBus1 Handle = 0x51

	// Channels at or above this value are taken to be raw PCAN handles.
	DirectHandleMin = 0x20

	// Number of contiguous PCAN-USB bus slots following USBBus1.
	USBBusCount = 16
)

// Status is a PCANBasic status code (TPCANStatus).
type Status uint32

const (
	StatusOK        Status = 0x00000
	StatusXmtFull   Status = 0x00001
	StatusBusLight  Status = 0x00004
	StatusBusHeavy  Status = 0x00008
	StatusQRcvEmpty Status = 0x00020 // receive queue empty, normal drain termination
	StatusQOverrun  Status = 0x00040
	StatusIllHw     Status = 0x01400
	StatusInitFail  Status = 0x20000
)

// Baudrate is a BTR0/BTR1 register pair (TPCANBaudrate).
type Baudrate uint16

const (
	Baud1M   Baudrate = 0x0014
	Baud800K Baudrate = 0x0016
	Baud500K Baudrate = 0x001C
	Baud250K Baudrate = 0x011C
	Baud125K Baudrate = 0x031C
	Baud100K Baudrate = 0x432F
	Baud95K  Baudrate = 0xC34E
	Baud83K  Baudrate = 0x852B
	Baud50K  Baudrate = 0x472F
	Baud47K  Baudrate = 0x1414
	Baud33K  Baudrate = 0x8B2F
	Baud20K  Baudrate = 0x532F
	Baud10K  Baudrate = 0x672F
	Baud5K   Baudrate = 0x7F7F
)

// MsgType flags a message as standard/extended/RTR (TPCANMessageType).
type MsgType uint8

const (
	MsgTypeStandard MsgType = 0x00
	MsgTypeRTR      MsgType = 0x01
	MsgTypeExtended MsgType = 0x02
)

// Msg mirrors TPCANMsg: an 11/29-bit identifier and up to 8 payload bytes.
type Msg struct {
	ID   uint32
	Type MsgType
	Len  uint8
	Data [8]byte
}

// ReceiveWaiter blocks until the channel signals that data may be ready.
// Wait returns (true, nil) when signalled, (false, nil) on timeout and
// (false, err) when the wait mechanism itself failed.
type ReceiveWaiter interface {
	Wait(timeout time.Duration) (bool, error)
	Close() error
}

// API is the slice of PCANBasic consumed by the transport layer.
//
// AttachReceiveEvent wires a receive-ready signal to the channel; callers
// must treat failure as non-fatal and fall back to polling.
// DetachReceiveEvent clears the channel's registration before the waiter is
// closed.
type API interface {
	Initialize(h Handle, baud Baudrate) Status
	Uninitialize(h Handle) Status
	Read(h Handle) (Msg, Status)
	Write(h Handle, m *Msg) Status
	AttachReceiveEvent(h Handle) (ReceiveWaiter, error)
	DetachReceiveEvent(h Handle, w ReceiveWaiter)
	ErrorText(st Status) string
}

// BaudrateFor maps a bitrate in bits/sec to the SDK's discrete rate codes.
// Only exact matches are accepted.
func BaudrateFor(bitrate int) (Baudrate, bool) {
	switch bitrate {
	case 1000000:
		return Baud1M, true
	case 800000:
		return Baud800K, true
	case 500000:
		return Baud500K, true
	case 250000:
		return Baud250K, true
	case 125000:
		return Baud125K, true
	case 100000:
		return Baud100K, true
	case 95000:
		return Baud95K, true
	case 83333:
		return Baud83K, true
	case 50000:
		return Baud50K, true
	case 47619:
		return Baud47K, true
	case 33333:
		return Baud33K, true
	case 20000:
		return Baud20K, true
	case 10000:
		return Baud10K, true
	case 5000:
		return Baud5K, true
	default:
		return 0, false
	}
}

// ResolveHandle maps a logical channel index to a PCAN handle. Values at or
// above DirectHandleMin pass through; 1..16 select the built-in USB bus
// slots; anything else resolves to NoneBus.
func ResolveHandle(channel int) Handle {
	if channel >= DirectHandleMin {
		return Handle(channel)
	}
	if channel >= 1 && channel <= USBBusCount {
		return USBBus1 + Handle(channel-1)
	}
	return NoneBus
}
