package ethernet

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/soypat/lneto/ethernet"
	"go.uber.org/atomic"
	"go.viam.com/rdk/logging"

	"github.com/viam-modules/w5500/w5500"
)

// frameBacklog holds the most recent received frames until a client drains them. When full the
// oldest frame is dropped.
type frameBacklog struct {
	logger logging.Logger

	mu     sync.Mutex
	frames []receivedFrame
	limit  int

	received atomic.Uint64
	dropped  atomic.Uint64
}

type receivedFrame struct {
	socket w5500.Socket
	data   []byte
}

func newFrameBacklog(limit int, logger logging.Logger) *frameBacklog {
	return &frameBacklog{limit: limit, logger: logger}
}

// push is installed as the device's receive callback.
func (b *frameBacklog) push(sn w5500.Socket, data []byte) {
	b.received.Inc()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) >= b.limit {
		b.frames = b.frames[1:]
		b.dropped.Inc()
		b.logger.Warnw("frame backlog full, dropping oldest frame", "limit", b.limit)
	}
	b.frames = append(b.frames, receivedFrame{socket: sn, data: data})
}

func (b *frameBacklog) drain() []receivedFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	frames := b.frames
	b.frames = nil
	return frames
}

func (b *frameBacklog) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// describe renders a frame for DoCommand. Records too short to carry an Ethernet header are
// reported raw.
func (f receivedFrame) describe() map[string]interface{} {
	out := map[string]interface{}{
		"socket": int(f.socket),
		"length": len(f.data),
		"data":   hex.EncodeToString(f.data),
	}
	frm, err := ethernet.NewFrame(f.data)
	if err != nil {
		out["error"] = err.Error()
		return out
	}
	out["destination"] = formatMAC(*frm.DestinationHardwareAddr())
	out["source"] = formatMAC(*frm.SourceHardwareAddr())
	out["ethertype"] = fmt.Sprintf("0x%04x", uint16(frm.EtherTypeOrSize()))
	out["broadcast"] = frm.IsBroadcast()
	return out
}

func formatMAC(addr [6]byte) string {
	return string(ethernet.AppendAddr(nil, addr))
}

// localEtherType is the IEEE local experimental EtherType.
const localEtherType ethernet.Type = 0x88B5

// BuildBroadcast wraps payload in a broadcast Ethernet header from src.
func BuildBroadcast(src [6]byte, payload []byte) ([]byte, error) {
	buf := make([]byte, 14+len(payload))
	frm, err := ethernet.NewFrame(buf)
	if err != nil {
		return nil, err
	}
	*frm.DestinationHardwareAddr() = ethernet.BroadcastAddr()
	*frm.SourceHardwareAddr() = src
	frm.SetEtherType(localEtherType)
	copy(buf[frm.HeaderLength():], payload)
	return buf, nil
}

// FrameSummary renders the Ethernet header of data on one line.
func FrameSummary(data []byte) string {
	frm, err := ethernet.NewFrame(data)
	if err != nil {
		return fmt.Sprintf("%d bytes (%v)", len(data), err)
	}
	return fmt.Sprintf("%s > %s type 0x%04x, %d bytes",
		formatMAC(*frm.SourceHardwareAddr()),
		formatMAC(*frm.DestinationHardwareAddr()),
		uint16(frm.EtherTypeOrSize()),
		len(data))
}
