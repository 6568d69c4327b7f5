// Package depacketizer reassembles raw frames from the RTP packets produced
// by package packetizer.
package depacketizer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"

	"github.com/thesyncim/libgoscrap/pkg/packetizer"
)

// Errors
var (
	ErrDepacketizerClosed = errors.New("depacketizer is closed")
	ErrNeedMoreData       = errors.New("need more data")
	ErrBufferTooSmall     = errors.New("buffer too small")
	ErrInvalidPacket      = errors.New("invalid raw frame packet")
)

// FrameInfo contains metadata about a reassembled frame.
type FrameInfo struct {
	Size      int
	Timestamp uint32
}

// Stats counts frames seen by a Depacketizer.
type Stats struct {
	Completed uint64 // frames fully reassembled
	Dropped   uint64 // frames abandoned incomplete or overwritten before PopInto
}

// Depacketizer reassembles RTP packets into complete frames. Only the most
// recent complete frame is kept.
type Depacketizer interface {
	// Push adds an RTP packet to the reassembly buffer.
	Push(packet []byte) error

	// PopInto copies the latest complete frame into dst.
	// Returns ErrNeedMoreData if no complete frame is available.
	PopInto(dst []byte) (FrameInfo, error)

	// Stats returns the frame counters.
	Stats() Stats

	// Close releases resources.
	Close() error
}

type depacketizer struct {
	maxFrame int
	closed   atomic.Bool
	mu       sync.Mutex

	// frame being reassembled
	partial   []byte
	timestamp uint32
	active    bool
	received  int
	seen      map[uint32]struct{}
	stride    int // length of every chunk but the last, once known
	lastAt    int // offset of the final chunk if seen before stride, else -1

	// last frame completed, so its late duplicates are not taken for a new one
	doneTimestamp uint32
	doneSize      int
	done          bool

	// latest complete frame
	ready     []byte
	readyInfo FrameInfo
	hasReady  bool

	stats Stats
}

// New creates a depacketizer accepting frames of up to maxFrame bytes.
// Zero means no limit.
func New(maxFrame int) Depacketizer {
	return &depacketizer{
		maxFrame: maxFrame,
		seen:     make(map[uint32]struct{}),
		lastAt:   -1,
	}
}

func (d *depacketizer) Push(packet []byte) error {
	if d.closed.Load() {
		return ErrDepacketizerClosed
	}
	if len(packet) == 0 {
		return nil
	}

	var pkt rtp.Packet
	if err := pkt.Unmarshal(packet); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPacket, err)
	}
	offset, total, ok := packetizer.ParseChunkHeader(pkt.Payload)
	if !ok {
		return fmt.Errorf("%w: short payload", ErrInvalidPacket)
	}
	chunk := pkt.Payload[packetizer.ChunkHeaderSize:]
	if total == 0 || uint64(offset)+uint64(len(chunk)) > uint64(total) {
		return fmt.Errorf("%w: chunk %d+%d outside frame of %d", ErrInvalidPacket, offset, len(chunk), total)
	}
	if d.maxFrame > 0 && int(total) > d.maxFrame {
		return fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrInvalidPacket, total, d.maxFrame)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active && d.done && pkt.Timestamp == d.doneTimestamp && int(total) == d.doneSize {
		return nil
	}
	if !d.active || pkt.Timestamp != d.timestamp || len(d.partial) != int(total) {
		d.begin(pkt.Timestamp, int(total))
	}
	if _, dup := d.seen[offset]; dup {
		return nil
	}
	if err := d.checkChunk(int(offset), len(chunk)); err != nil {
		return err
	}
	d.seen[offset] = struct{}{}
	copy(d.partial[offset:], chunk)
	d.received += len(chunk)

	if d.received == len(d.partial) {
		d.complete()
	}
	return nil
}

// begin starts reassembling a new frame, abandoning the current one.
func (d *depacketizer) begin(timestamp uint32, size int) {
	if d.active {
		d.stats.Dropped++
	}
	if cap(d.partial) >= size {
		d.partial = d.partial[:size]
	} else {
		d.partial = make([]byte, size)
	}
	d.timestamp = timestamp
	d.active = true
	d.received = 0
	d.stride = 0
	d.lastAt = -1
	clear(d.seen)
}

// checkChunk keeps the frame tiled by equal chunks so the byte count only
// reaches the frame size once every byte was written exactly once.
func (d *depacketizer) checkChunk(offset, n int) error {
	if n == 0 {
		return fmt.Errorf("%w: empty chunk", ErrInvalidPacket)
	}
	final := offset+n == len(d.partial)
	if d.stride == 0 {
		if final {
			if d.lastAt >= 0 {
				return fmt.Errorf("%w: second final chunk at %d", ErrInvalidPacket, offset)
			}
			if offset != 0 {
				d.lastAt = offset
			}
			return nil
		}
		if offset%n != 0 || (d.lastAt >= 0 && (d.lastAt%n != 0 || len(d.partial)-d.lastAt > n)) {
			return fmt.Errorf("%w: chunk %d+%d does not tile the frame", ErrInvalidPacket, offset, n)
		}
		d.stride = n
		return nil
	}
	if offset%d.stride != 0 || n > d.stride || (!final && n != d.stride) {
		return fmt.Errorf("%w: chunk %d+%d does not tile the frame", ErrInvalidPacket, offset, n)
	}
	return nil
}

func (d *depacketizer) complete() {
	if d.hasReady {
		d.stats.Dropped++
	}
	d.partial, d.ready = d.ready, d.partial
	d.readyInfo = FrameInfo{Size: len(d.ready), Timestamp: d.timestamp}
	d.hasReady = true
	d.active = false
	d.doneTimestamp, d.doneSize, d.done = d.timestamp, len(d.ready), true
	d.stats.Completed++
}

func (d *depacketizer) PopInto(dst []byte) (FrameInfo, error) {
	if d.closed.Load() {
		return FrameInfo{}, ErrDepacketizerClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.hasReady {
		return FrameInfo{}, ErrNeedMoreData
	}
	if len(dst) < len(d.ready) {
		return FrameInfo{}, ErrBufferTooSmall
	}
	copy(dst, d.ready)
	d.hasReady = false
	return d.readyInfo, nil
}

func (d *depacketizer) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *depacketizer) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.partial, d.ready = nil, nil
	return nil
}
