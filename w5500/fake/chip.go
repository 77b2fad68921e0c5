// Package fake implements a simulated W5500 behind the buses.SPI interface. It models the parts of
// the chip the driver depends on: write-1-to-clear interrupt flags, a self-clearing command
// register, wrapped socket buffers and the software reset bit.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/viam-modules/w5500/buses"
	"github.com/viam-modules/w5500/pins"
)

const (
	numSockets    = 8
	maxBufferSize = 16 * 1024
	headerSize    = 3
	controlWrite  = 0x04

	regMode    = 0x0000
	regIR      = 0x0015
	regSIR     = 0x0017
	regPHYCFGR = 0x002E
	regVersion = 0x0039

	snMR        = 0x0000
	snCR        = 0x0001
	snIR        = 0x0002
	snSR        = 0x0003
	snRXBufSize = 0x001E
	snTXBufSize = 0x001F
	snTXFSR     = 0x0020
	snTXRD      = 0x0022
	snTXWR      = 0x0024
	snRXRSR     = 0x0026
	snRXRD      = 0x0028
	snRXWR      = 0x002A
	snIMR       = 0x002C

	cmdOpen  = 0x01
	cmdClose = 0x10
	cmdSend  = 0x20
	cmdRecv  = 0x40

	irSendOK  = 0x10
	irReceive = 0x04

	statusClosed = 0x00
	statusInit   = 0x13
	statusMACRAW = 0x42
	modeMACRAW   = 0x04
)

// Transaction is one decoded bus transaction.
type Transaction struct {
	Write bool
	Addr  uint16
	Block uint8
	Data  []byte
}

type socket struct {
	regs        [0x30]byte
	tx          [maxBufferSize]byte
	rx          [maxBufferSize]byte
	pendingRead int
}

// Chip is a simulated W5500. The zero value is not usable; use NewChip.
type Chip struct {
	// busMu is held between OpenHandle and the handle's Close.
	busMu sync.Mutex

	mu      sync.Mutex
	common  [0x40]byte
	sockets [numSockets]socket
	log     []Transaction
	sent    [][]byte
	failErr error
	latency int
	onTxn   func(Transaction)
	line    *InterruptLine
}

var _ buses.SPI = (*Chip)(nil)

// NewChip returns a chip freshly out of reset with its link up at 100Mbps full duplex.
func NewChip() *Chip {
	c := &Chip{line: newInterruptLine()}
	c.common[regVersion] = 0x04
	c.common[regPHYCFGR] = 0x07
	c.reset()
	return c
}

func (c *Chip) reset() {
	version, phy := c.common[regVersion], c.common[regPHYCFGR]
	c.common = [0x40]byte{}
	c.common[regVersion] = version
	c.common[regPHYCFGR] = phy
	for i := range c.sockets {
		s := &c.sockets[i]
		*s = socket{}
		s.regs[snRXBufSize] = 2
		s.regs[snTXBufSize] = 2
		s.regs[snIMR] = 0xFF
		put16(s.regs[:], snTXFSR, 2048)
	}
}

// SetVersion overrides the identification register.
func (c *Chip) SetVersion(v byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.common[regVersion] = v
}

// SetPHY overrides the PHY configuration register.
func (c *Chip) SetPHY(v byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.common[regPHYCFGR] = v
}

// SetCommandLatency sets how many reads of a socket command register still return the command
// before the chip clears it. A negative latency never clears.
func (c *Chip) SetCommandLatency(polls int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency = polls
}

// FailNext makes the next transaction fail with err.
func (c *Chip) FailNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failErr = err
}

// OnTransaction registers fn to run after every transaction.
func (c *Chip) OnTransaction(fn func(Transaction)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTxn = fn
}

// Transactions returns a copy of the transaction log.
func (c *Chip) Transactions() []Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Transaction(nil), c.log...)
}

// ResetTransactions clears the transaction log.
func (c *Chip) ResetTransactions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = nil
}

// SentFrames returns every payload the chip was told to SEND, in order.
func (c *Chip) SentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// Interrupt returns the chip's INTn line. It pulses whenever a flag gets latched.
func (c *Chip) Interrupt() pins.InterruptLine {
	return c.line
}

// Reg8 peeks a register without logging a transaction.
func (c *Chip) Reg8(block uint8, addr uint16) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peek(block, addr)
}

// Reg16 peeks a big-endian register pair without logging a transaction.
func (c *Chip) Reg16(block uint8, addr uint16) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint16(c.peek(block, addr))<<8 | uint16(c.peek(block, addr+1))
}

// SetReg8 pokes a register without side effects.
func (c *Chip) SetReg8(block uint8, addr uint16, v byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poke(block, addr, v)
}

// SetReg16 pokes a big-endian register pair without side effects.
func (c *Chip) SetReg16(block uint8, addr, v uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poke(block, addr, byte(v>>8))
	c.poke(block, addr+1, byte(v))
}

// RaiseInterrupt latches bits in the socket's interrupt register and its bit in SIR.
func (c *Chip) RaiseInterrupt(sn int, bits byte) {
	c.mu.Lock()
	c.sockets[sn].regs[snIR] |= bits
	c.common[regSIR] |= 1 << sn
	c.mu.Unlock()
	c.line.pulse()
}

// InjectFrame places payload in the socket's receive ring as the chip would on reception: a
// two-byte length that counts itself, then the payload. The receive flag is latched when the
// socket's interrupt mask allows it.
func (c *Chip) InjectFrame(sn int, payload []byte) {
	c.mu.Lock()
	s := &c.sockets[sn]
	wr := get16(s.regs[:], snRXWR)
	record := uint16(len(payload) + 2)
	mask := bufMask(s.regs[snRXBufSize])
	s.rx[wr&mask] = byte(record >> 8)
	s.rx[(wr+1)&mask] = byte(record)
	for i, b := range payload {
		s.rx[(wr+2+uint16(i))&mask] = b
	}
	wr += record
	put16(s.regs[:], snRXWR, wr)
	put16(s.regs[:], snRXRSR, wr-get16(s.regs[:], snRXRD))
	raised := s.regs[snIMR]&irReceive != 0
	if raised {
		s.regs[snIR] |= irReceive
		c.common[regSIR] |= 1 << sn
	}
	c.mu.Unlock()
	if raised {
		c.line.pulse()
	}
}

// OpenHandle locks the simulated bus.
func (c *Chip) OpenHandle() (buses.SPIHandle, error) {
	c.busMu.Lock()
	return &handle{chip: c}, nil
}

// Close releases nothing; the chip lives until garbage collected.
func (c *Chip) Close(ctx context.Context) error {
	return nil
}

type handle struct {
	chip   *Chip
	closed bool
}

func (h *handle) Xfer(ctx context.Context, baud uint, chipSelect string, mode uint, tx []byte) ([]byte, error) {
	if h.closed {
		return nil, errors.New("can't use Xfer() on an already closed SPIHandle")
	}
	if mode != 0 && mode != 3 {
		return nil, errors.Errorf("unsupported SPI mode %d", mode)
	}
	return h.chip.xfer(tx)
}

func (h *handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.chip.busMu.Unlock()
	return nil
}

func (c *Chip) xfer(tx []byte) ([]byte, error) {
	if len(tx) < headerSize {
		return nil, errors.Errorf("transaction of %d bytes is shorter than the header", len(tx))
	}
	c.mu.Lock()
	if err := c.failErr; err != nil {
		c.failErr = nil
		c.mu.Unlock()
		return nil, err
	}
	addr := uint16(tx[0])<<8 | uint16(tx[1])
	block := tx[2] >> 3
	write := tx[2]&controlWrite != 0
	rx := make([]byte, len(tx))
	txn := Transaction{Write: write, Addr: addr, Block: block}
	var pulse bool
	if write {
		txn.Data = append([]byte(nil), tx[headerSize:]...)
		for i, b := range txn.Data {
			pulse = c.write(block, addr+uint16(i), b) || pulse
		}
	} else {
		for i := headerSize; i < len(tx); i++ {
			rx[i] = c.read(block, addr+uint16(i-headerSize))
		}
		txn.Data = append([]byte(nil), rx[headerSize:]...)
	}
	c.log = append(c.log, txn)
	onTxn := c.onTxn
	c.mu.Unlock()

	if pulse {
		c.line.pulse()
	}
	if onTxn != nil {
		onTxn(txn)
	}
	return rx, nil
}

func bufMask(kb byte) uint16 {
	size := uint16(kb) * 1024
	if size == 0 || size > maxBufferSize {
		size = 2048
	}
	return size - 1
}

func (c *Chip) peek(block uint8, addr uint16) byte {
	if block == 0 {
		if int(addr) < len(c.common) {
			return c.common[addr]
		}
		return 0
	}
	s := &c.sockets[(block-1)/4%numSockets]
	switch (block - 1) % 4 {
	case 0:
		if int(addr) < len(s.regs) {
			return s.regs[addr]
		}
		return 0
	case 1:
		return s.tx[addr&bufMask(s.regs[snTXBufSize])]
	case 2:
		return s.rx[addr&bufMask(s.regs[snRXBufSize])]
	}
	return 0
}

func (c *Chip) poke(block uint8, addr uint16, v byte) {
	if block == 0 {
		if int(addr) < len(c.common) {
			c.common[addr] = v
		}
		return
	}
	s := &c.sockets[(block-1)/4%numSockets]
	switch (block - 1) % 4 {
	case 0:
		if int(addr) < len(s.regs) {
			s.regs[addr] = v
		}
	case 1:
		s.tx[addr&bufMask(s.regs[snTXBufSize])] = v
	case 2:
		s.rx[addr&bufMask(s.regs[snRXBufSize])] = v
	}
}

func (c *Chip) read(block uint8, addr uint16) byte {
	if block != 0 && (block-1)%4 == 0 && addr == snCR {
		s := &c.sockets[(block-1)/4%numSockets]
		if s.regs[snCR] == 0 {
			return 0
		}
		switch {
		case c.latency < 0:
		case s.pendingRead > 0:
			s.pendingRead--
		default:
			s.regs[snCR] = 0
		}
		return s.regs[snCR]
	}
	return c.peek(block, addr)
}

// write applies one byte with register side effects. It reports whether an interrupt flag got
// latched.
func (c *Chip) write(block uint8, addr uint16, v byte) bool {
	if block == 0 {
		switch addr {
		case regMode:
			if v&0x80 != 0 {
				c.reset()
				return false
			}
			c.common[regMode] = v
		case regIR, regSIR:
			c.common[addr] &^= v
		case regVersion, regPHYCFGR:
			// read-only
		default:
			c.poke(block, addr, v)
		}
		return false
	}
	sn := int((block - 1) / 4 % numSockets)
	if (block-1)%4 != 0 {
		c.poke(block, addr, v)
		return false
	}
	s := &c.sockets[sn]
	switch addr {
	case snIR:
		s.regs[snIR] &^= v
	case snCR:
		s.regs[snCR] = v
		s.pendingRead = c.latency
		return c.execute(sn, v)
	case snSR, snTXFSR, snTXFSR + 1, snTXRD, snTXRD + 1, snRXRSR, snRXRSR + 1, snRXWR, snRXWR + 1:
		// read-only
	default:
		c.poke(block, addr, v)
	}
	return false
}

func (c *Chip) execute(sn int, cmd byte) bool {
	s := &c.sockets[sn]
	switch cmd {
	case cmdOpen:
		if s.regs[snMR]&0x0F == modeMACRAW {
			s.regs[snSR] = statusMACRAW
		} else {
			s.regs[snSR] = statusInit
		}
	case cmdClose:
		s.regs[snSR] = statusClosed
	case cmdSend:
		rd := get16(s.regs[:], snTXRD)
		wr := get16(s.regs[:], snTXWR)
		mask := bufMask(s.regs[snTXBufSize])
		frame := make([]byte, 0, wr-rd)
		for p := rd; p != wr; p++ {
			frame = append(frame, s.tx[p&mask])
		}
		c.sent = append(c.sent, frame)
		put16(s.regs[:], snTXRD, wr)
		if s.regs[snIMR]&irSendOK != 0 {
			s.regs[snIR] |= irSendOK
			c.common[regSIR] |= 1 << sn
			return true
		}
	case cmdRecv:
		put16(s.regs[:], snRXRSR, get16(s.regs[:], snRXWR)-get16(s.regs[:], snRXRD))
	}
	return false
}

func get16(regs []byte, addr int) uint16 {
	return uint16(regs[addr])<<8 | uint16(regs[addr+1])
}

func put16(regs []byte, addr int, v uint16) {
	regs[addr] = byte(v >> 8)
	regs[addr+1] = byte(v)
}
