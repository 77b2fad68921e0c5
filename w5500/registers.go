package w5500

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// NumSockets is the number of hardware sockets the chip exposes.
const NumSockets = 8

// Socket indexes one of the chip's hardware sockets, 0 through 7.
type Socket uint8

// BlockSelect picks the internal memory block a bus transaction targets.
type BlockSelect uint8

// CommonBlock addresses the common register block.
const CommonBlock BlockSelect = 0

// RegisterBlock is the block holding the socket's control registers.
func (sn Socket) RegisterBlock() BlockSelect { return BlockSelect(sn)*4 + 1 }

// TXBufferBlock is the block holding the socket's transmit ring.
func (sn Socket) TXBufferBlock() BlockSelect { return BlockSelect(sn)*4 + 2 }

// RXBufferBlock is the block holding the socket's receive ring.
func (sn Socket) RXBufferBlock() BlockSelect { return BlockSelect(sn)*4 + 3 }

func (sn Socket) validate() error {
	if sn >= NumSockets {
		return errors.Wrapf(ErrInvalidSocket, "socket %d", sn)
	}
	return nil
}

// Common register addresses.
const (
	RegMode    uint16 = 0x0000
	RegIR      uint16 = 0x0015
	RegIMR     uint16 = 0x0016
	RegSIR     uint16 = 0x0017
	RegSIMR    uint16 = 0x0018
	RegPHYCFGR uint16 = 0x002E
	RegVersion uint16 = 0x0039
)

// Socket register addresses, relative to Socket.RegisterBlock.
const (
	SnMR        uint16 = 0x0000
	SnCR        uint16 = 0x0001
	SnIR        uint16 = 0x0002
	SnSR        uint16 = 0x0003
	SnMSSR      uint16 = 0x0012
	SnRXBufSize uint16 = 0x001E
	SnTXBufSize uint16 = 0x001F
	SnTXFSR     uint16 = 0x0020
	SnTXRD      uint16 = 0x0022
	SnTXWR      uint16 = 0x0024
	SnRXRSR     uint16 = 0x0026
	SnRXRD      uint16 = 0x0028
	SnRXWR      uint16 = 0x002A
	SnIMR       uint16 = 0x002C
)

const (
	// ChipVersion is the identification register value of this chip family.
	ChipVersion uint8 = 0x04
	// ModeReset is the self-clearing software reset bit of the mode register.
	ModeReset uint8 = 0x80
	// SnModeMACRAW selects raw Ethernet frames in Sn_MR.
	SnModeMACRAW uint8 = 0x04
)

// RecvHeaderLen is the length prefix the chip writes in front of every received record.
const RecvHeaderLen = 2

// controlWrite is the read/write bit of the control phase byte.
const controlWrite = 0x04

// Command is a socket command written to Sn_CR.
type Command uint8

// Socket commands.
const (
	CmdOpen     Command = 0x01
	CmdClose    Command = 0x10
	CmdSend     Command = 0x20
	CmdSendMAC  Command = 0x21
	CmdSendKeep Command = 0x22
	CmdRecv     Command = 0x40
)

func (c Command) String() string {
	switch c {
	case CmdOpen:
		return "OPEN"
	case CmdClose:
		return "CLOSE"
	case CmdSend:
		return "SEND"
	case CmdSendMAC:
		return "SEND_MAC"
	case CmdSendKeep:
		return "SEND_KEEP"
	case CmdRecv:
		return "RECV"
	default:
		return fmt.Sprintf("Command(0x%02x)", uint8(c))
	}
}

// Event is one bit of a socket's interrupt register.
type Event uint8

// Socket interrupt events.
const (
	EventConnect    Event = 0x01
	EventDisconnect Event = 0x02
	EventReceive    Event = 0x04
	EventTimeout    Event = 0x08
	EventSendOK     Event = 0x10
)

// eventOrder is the fixed order socket events are handled in.
var eventOrder = [...]Event{EventSendOK, EventTimeout, EventReceive, EventDisconnect, EventConnect}

func (ev Event) String() string {
	switch ev {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventReceive:
		return "receive"
	case EventTimeout:
		return "timeout"
	case EventSendOK:
		return "send-ok"
	default:
		return fmt.Sprintf("Event(0x%02x)", uint8(ev))
	}
}

// PHYStatus is the content of the PHY configuration register.
type PHYStatus uint8

// Link reports whether the link is up.
func (p PHYStatus) Link() bool { return p&0x01 != 0 }

// Speed100 reports a 100Mbps link, otherwise 10Mbps.
func (p PHYStatus) Speed100() bool { return p&0x02 != 0 }

// FullDuplex reports a full duplex link.
func (p PHYStatus) FullDuplex() bool { return p&0x04 != 0 }

func (p PHYStatus) String() string {
	if !p.Link() {
		return "Link Down"
	}
	var sb strings.Builder
	if p.FullDuplex() {
		sb.WriteString("Full ")
	} else {
		sb.WriteString("Half ")
	}
	if p.Speed100() {
		sb.WriteString("100Mbps based")
	} else {
		sb.WriteString("10Mbps based")
	}
	return sb.String()
}
