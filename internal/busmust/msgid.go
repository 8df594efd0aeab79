package busmust

// BM_MessageIdTypeDef packs the identifier as SID:11 | EID:18 | reserved:3
// starting from bit 0. These helpers replace the vendor's C bit-field macros
// with shifts on a plain uint32.

const (
	sidMask = 0x7FF
	eidMask = 0x3FFFF
)

// PackStandardID encodes an 11-bit identifier into the wire ID word.
func PackStandardID(id uint32) uint32 {
	return id & sidMask
}

// PackExtendedID encodes a 29-bit identifier: the top 11 bits land in SID,
// the low 18 in EID.
func PackExtendedID(id uint32) uint32 {
	return ((id >> 18) & sidMask) | ((id & eidMask) << 11)
}

// UnpackStandardID extracts the 11-bit identifier from the wire ID word.
func UnpackStandardID(raw uint32) uint32 {
	return raw & sidMask
}

// UnpackExtendedID reassembles the 29-bit identifier from SID and EID.
func UnpackExtendedID(raw uint32) uint32 {
	return ((raw & sidMask) << 18) | ((raw >> 11) & eidMask)
}

// Ctrl word bit layout, shared by the TX and RX variants up to ESI:
// DLC:4 | IDE:1 | RTR:1 | BRS:1 | FDF:1 | ESI:1.
const (
	ctrlDLCMask = 0xF
	ctrlIDEBit  = 1 << 4
	ctrlRTRBit  = 1 << 5
	ctrlBRSBit  = 1 << 6
	ctrlFDFBit  = 1 << 7
	ctrlESIBit  = 1 << 8
)

// SetTxHeader fills the message for transmission: identifier, extended flag
// and DLC, with the RTR/BRS/FDF/ESI bits cleared.
func (m *CanMessage) SetTxHeader(id uint32, extended bool, dlc int) {
	m.Ctrl = uint32(dlc) & ctrlDLCMask
	if extended {
		m.ID = PackExtendedID(id)
		m.Ctrl |= ctrlIDEBit
	} else {
		m.ID = PackStandardID(id)
	}
}

// Extended reports the IDE bit.
func (m *CanMessage) Extended() bool { return m.Ctrl&ctrlIDEBit != 0 }

// DLC returns the data length code field.
func (m *CanMessage) DLC() int { return int(m.Ctrl & ctrlDLCMask) }

// CanID returns the identifier, honouring the IDE bit.
func (m *CanMessage) CanID() uint32 {
	if m.Extended() {
		return UnpackExtendedID(m.ID)
	}
	return UnpackStandardID(m.ID)
}
