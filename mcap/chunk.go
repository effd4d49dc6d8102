package mcap

import (
	"hash"
	"hash/crc32"
	"math"
)

// chunkBuffer accumulates the uncompressed records of the active chunk.
// Offsets it hands out are relative to the start of the chunk's records.
type chunkBuffer struct {
	buf []byte
	crc hash.Hash32

	messageCount     int
	messageStartTime uint64
	messageEndTime   uint64
}

// chunkPayload is a sealed chunk, ready to be compressed and framed.
type chunkPayload struct {
	records          []byte
	crc              uint32
	messageCount     int
	messageStartTime uint64
	messageEndTime   uint64
}

func newChunkBuffer() *chunkBuffer {
	c := &chunkBuffer{crc: crc32.NewIEEE()}
	c.beginChunk()
	return c
}

func (c *chunkBuffer) beginChunk() {
	c.buf = c.buf[:0]
	c.crc.Reset()
	c.messageCount = 0
	c.messageStartTime = math.MaxUint64
	c.messageEndTime = 0
}

// appendRecord adds one complete record and returns its offset.
func (c *chunkBuffer) appendRecord(rec []byte) uint64 {
	offset := uint64(len(c.buf))
	c.buf = append(c.buf, rec...)
	_, _ = c.crc.Write(rec)
	return offset
}

// appendMessage adds a message record and widens the chunk time bounds.
func (c *chunkBuffer) appendMessage(rec []byte, logTime uint64) uint64 {
	offset := c.appendRecord(rec)
	c.messageCount++
	if logTime < c.messageStartTime {
		c.messageStartTime = logTime
	}
	if logTime > c.messageEndTime {
		c.messageEndTime = logTime
	}
	return offset
}

func (c *chunkBuffer) size() int {
	return len(c.buf)
}

func (c *chunkBuffer) empty() bool {
	return len(c.buf) == 0
}

// sealChunk returns the buffered records and starts a new chunk. The
// returned records alias an internal buffer that is reused once the next
// record is appended. A chunk without messages reports 0 for both times.
func (c *chunkBuffer) sealChunk() chunkPayload {
	p := chunkPayload{
		records:          c.buf,
		crc:              c.crc.Sum32(),
		messageCount:     c.messageCount,
		messageStartTime: c.messageStartTime,
		messageEndTime:   c.messageEndTime,
	}
	if p.messageCount == 0 {
		p.messageStartTime = 0
	}
	c.beginChunk()
	return p
}
