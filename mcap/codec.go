package mcap

import (
	"encoding/binary"
	"hash"
	"hash/crc32"
	"math"
	"sort"
	"strconv"
)

// maxPrefixedLength is the largest string, blob or map that fits a uint32
// length prefix.
var maxPrefixedLength uint64 = math.MaxUint32

// Record is one of the closed set of MCAP record kinds defined in this
// package.
type Record interface {
	OpCode() OpCode
	appendBody(b *recordBuilder)
}

// Encode serializes r, including its opcode and length prefix.
func Encode(r Record) ([]byte, error) {
	return AppendRecord(nil, r, nil)
}

// AppendRecord appends the encoded form of r to dst. If crc is non-nil it is
// updated with the appended bytes. On error dst is returned unchanged and crc
// is not touched.
func AppendRecord(dst []byte, r Record, crc hash.Hash32) ([]byte, error) {
	b := recordBuilder{buf: dst}
	b.startRecord(r.OpCode())
	r.appendBody(&b)
	b.finishRecord()
	if b.err != nil {
		return dst, b.err
	}
	if crc != nil {
		_, _ = crc.Write(b.buf[len(dst):])
	}
	return b.buf, nil
}

// recordBuilder appends one record at a time, reserving the length field
// and patching it once the body is complete. The first failure is kept and
// later writes are ignored.
type recordBuilder struct {
	buf   []byte
	start int
	op    OpCode
	err   error
}

func (b *recordBuilder) startRecord(op OpCode) {
	b.op = op
	b.start = len(b.buf)
	b.buf = append(b.buf, byte(op), 0, 0, 0, 0, 0, 0, 0, 0)
}

func (b *recordBuilder) finishRecord() {
	if b.err != nil {
		return
	}
	n := len(b.buf) - b.start - recordPrefixLen
	binary.LittleEndian.PutUint64(b.buf[b.start+1:], uint64(n))
}

// body returns the bytes written since startRecord, excluding the prefix.
func (b *recordBuilder) body() []byte {
	return b.buf[b.start+recordPrefixLen:]
}

func (b *recordBuilder) fail(field, reason string) {
	if b.err == nil {
		b.err = &EncodingError{Record: b.op, Field: field, Reason: reason}
	}
}

func (b *recordBuilder) checkID(field string, id uint16) {
	if id == 0 {
		b.fail(field, "id 0 is reserved")
	}
}

func (b *recordBuilder) checkLen(field string, n uint64) bool {
	if n > maxPrefixedLength {
		b.fail(field, "length "+strconv.FormatUint(n, 10)+" exceeds uint32 prefix")
		return false
	}
	return true
}

func (b *recordBuilder) write1(v byte) {
	if b.err == nil {
		b.buf = append(b.buf, v)
	}
}

func (b *recordBuilder) write2(v uint16) {
	if b.err == nil {
		b.buf = binary.LittleEndian.AppendUint16(b.buf, v)
	}
}

func (b *recordBuilder) write4(v uint32) {
	if b.err == nil {
		b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
	}
}

func (b *recordBuilder) write8(v uint64) {
	if b.err == nil {
		b.buf = binary.LittleEndian.AppendUint64(b.buf, v)
	}
}

func (b *recordBuilder) write(p []byte) {
	if b.err == nil {
		b.buf = append(b.buf, p...)
	}
}

func (b *recordBuilder) writePrefixedString(field, s string) {
	if !b.checkLen(field, uint64(len(s))) {
		return
	}
	b.write4(uint32(len(s)))
	if b.err == nil {
		b.buf = append(b.buf, s...)
	}
}

func (b *recordBuilder) writePrefixedBytes(field string, p []byte) {
	if !b.checkLen(field, uint64(len(p))) {
		return
	}
	b.write4(uint32(len(p)))
	b.write(p)
}

// writeLongBytes writes p with a uint64 length prefix.
func (b *recordBuilder) writeLongBytes(p []byte) {
	b.write8(uint64(len(p)))
	b.write(p)
}

// writeStringMap writes m as a byte-length-prefixed sequence of prefixed
// key/value strings, ordered by key.
func (b *recordBuilder) writeStringMap(field string, m map[string]string) {
	keys := make([]string, 0, len(m))
	var size uint64
	for k, v := range m {
		keys = append(keys, k)
		size += 8 + uint64(len(k)) + uint64(len(v))
	}
	if !b.checkLen(field, size) {
		return
	}
	sort.Strings(keys)
	b.write4(uint32(size))
	for _, k := range keys {
		b.writePrefixedString(field, k)
		b.writePrefixedString(field, m[k])
	}
}

// writeUint64Map writes m as a byte-length-prefixed sequence of
// (uint16 key, uint64 value) pairs, ordered by key.
func (b *recordBuilder) writeUint64Map(field string, m map[uint16]uint64) {
	size := uint64(len(m)) * (2 + 8)
	if !b.checkLen(field, size) {
		return
	}
	b.write4(uint32(size))
	for _, k := range sortedKeys(m) {
		b.write2(k)
		b.write8(m[k])
	}
}

func sortedKeys(m map[uint16]uint64) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

var crcTable = crc32.IEEETable
