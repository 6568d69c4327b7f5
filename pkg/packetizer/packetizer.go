// Package packetizer splits raw captured frames into RTP packets.
//
// Frames travel uncompressed. Every packet payload starts with an 8-byte
// chunk header: the big-endian offset of the chunk within the frame and the
// total frame length. The last packet of a frame carries the RTP marker bit.
package packetizer

import (
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
)

// ChunkHeaderSize is the size of the header in front of every payload.
const ChunkHeaderSize = 8

// DefaultMTU leaves room for IP and UDP headers on common links.
const DefaultMTU = 1200

// Errors
var (
	ErrPacketizerClosed = errors.New("packetizer is closed")
	ErrBufferTooSmall   = errors.New("buffer too small")
	ErrInvalidData      = errors.New("invalid data")
	ErrFrameTooLarge    = errors.New("frame larger than 4 GiB")
)

// Config configures an RTP packetizer.
type Config struct {
	SSRC        uint32
	PayloadType uint8
	MTU         uint16 // Maximum transmission unit (typically 1200)
	ClockRate   uint32 // RTP clock rate (90000 for video)

	// InitialSequence is the first sequence number. Zero picks a random one.
	InitialSequence uint16
}

// PacketInfo describes a single RTP packet in the output buffer.
type PacketInfo struct {
	Offset int // Offset into the buffer where this packet starts
	Size   int // Size of this packet
}

// Packetizer converts raw frames into RTP packets.
type Packetizer interface {
	// Packetize splits a frame into packets stamped with timestamp.
	Packetize(data []byte, timestamp uint32) ([]*rtp.Packet, error)

	// PacketizeInto marshals the packets of a frame contiguously into dst.
	// packets receives the offset and size of each one. Returns the number
	// of packets written.
	PacketizeInto(data []byte, timestamp uint32, dst []byte, packets []PacketInfo) (int, error)

	// MaxPackets returns the number of packets a frame of frameSize bytes
	// is split into.
	MaxPackets(frameSize int) int

	// MaxPacketSize returns the maximum size of a single RTP packet.
	MaxPacketSize() int

	// SequenceNumber returns the sequence number of the next packet.
	SequenceNumber() uint16

	// Close releases resources.
	Close() error
}

type packetizer struct {
	config Config
	rtp    rtp.Packetizer
	next   uint16
	closed atomic.Bool
	mu     sync.Mutex
}

// New creates a new RTP packetizer.
func New(cfg Config) (Packetizer, error) {
	if cfg.MTU == 0 {
		cfg.MTU = DefaultMTU
	}
	if cfg.ClockRate == 0 {
		cfg.ClockRate = 90000
	}
	if int(cfg.MTU) <= rtpHeaderSize+ChunkHeaderSize {
		return nil, ErrBufferTooSmall
	}

	start := cfg.InitialSequence
	if start == 0 {
		start = uint16(rand.UintN(1 << 16))
	}
	p := &packetizer{config: cfg, next: start}
	seq := &peekSequencer{Sequencer: rtp.NewFixedSequencer(start), next: &p.next}
	p.rtp = rtp.NewPacketizer(cfg.MTU, cfg.PayloadType, cfg.SSRC, chunkPayloader{}, seq, cfg.ClockRate)
	return p, nil
}

// Timestamp converts elapsed time to an RTP timestamp at clockRate, rounded
// to the nearest tick. The result wraps modulo 2^32 like any RTP clock.
func Timestamp(elapsed time.Duration, clockRate uint32) uint32 {
	if elapsed < 0 {
		elapsed = 0
	}
	secs := uint64(elapsed / time.Second)
	frac := uint64(elapsed % time.Second)
	ticks := secs*uint64(clockRate) + (frac*uint64(clockRate)+uint64(time.Second)/2)/uint64(time.Second)
	return uint32(ticks)
}

// rtpHeaderSize is the fixed RTP header without CSRCs or extensions.
const rtpHeaderSize = 12

func (p *packetizer) Packetize(data []byte, timestamp uint32) ([]*rtp.Packet, error) {
	if p.closed.Load() {
		return nil, ErrPacketizerClosed
	}
	if len(data) == 0 {
		return nil, ErrInvalidData
	}
	if uint64(len(data)) > 1<<32-1 {
		return nil, ErrFrameTooLarge
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	packets := p.rtp.Packetize(data, 0)
	for _, pkt := range packets {
		pkt.Timestamp = timestamp
	}
	return packets, nil
}

func (p *packetizer) PacketizeInto(data []byte, timestamp uint32, dst []byte, packets []PacketInfo) (int, error) {
	if n := p.MaxPackets(len(data)); n > len(packets) {
		return 0, ErrBufferTooSmall
	}
	out, err := p.Packetize(data, timestamp)
	if err != nil {
		return 0, err
	}

	offset := 0
	for i, pkt := range out {
		n, err := pkt.MarshalTo(dst[offset:])
		if err != nil {
			return 0, ErrBufferTooSmall
		}
		packets[i] = PacketInfo{Offset: offset, Size: n}
		offset += n
	}
	return len(out), nil
}

func (p *packetizer) MaxPackets(frameSize int) int {
	perPacket := p.chunkSize()
	return (frameSize + perPacket - 1) / perPacket
}

func (p *packetizer) MaxPacketSize() int {
	return int(p.config.MTU)
}

func (p *packetizer) SequenceNumber() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

func (p *packetizer) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *packetizer) chunkSize() int {
	return int(p.config.MTU) - rtpHeaderSize - ChunkHeaderSize
}

// chunkPayloader cuts a frame into chunks that each fit an RTP payload of
// mtu bytes, header included.
type chunkPayloader struct{}

func (chunkPayloader) Payload(mtu uint16, payload []byte) [][]byte {
	size := int(mtu) - ChunkHeaderSize
	if size <= 0 || len(payload) == 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(payload)+size-1)/size)
	for off := 0; off < len(payload); off += size {
		n := min(size, len(payload)-off)
		chunk := make([]byte, ChunkHeaderSize+n)
		PutChunkHeader(chunk, uint32(off), uint32(len(payload)))
		copy(chunk[ChunkHeaderSize:], payload[off:off+n])
		chunks = append(chunks, chunk)
	}
	return chunks
}

// PutChunkHeader writes a chunk header into the first ChunkHeaderSize bytes
// of b.
func PutChunkHeader(b []byte, offset, frameLen uint32) {
	binary.BigEndian.PutUint32(b[0:4], offset)
	binary.BigEndian.PutUint32(b[4:8], frameLen)
}

// ParseChunkHeader reads the header from the start of an RTP payload.
func ParseChunkHeader(payload []byte) (offset, frameLen uint32, ok bool) {
	if len(payload) < ChunkHeaderSize {
		return 0, 0, false
	}
	return binary.BigEndian.Uint32(payload[0:4]), binary.BigEndian.Uint32(payload[4:8]), true
}

// peekSequencer remembers the sequence number the next packet will get.
type peekSequencer struct {
	rtp.Sequencer
	next *uint16
}

func (s *peekSequencer) NextSequenceNumber() uint16 {
	n := s.Sequencer.NextSequenceNumber()
	*s.next = n + 1
	return n
}
