package mcap

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrMalformed is returned when bytes do not form a valid MCAP record.
var ErrMalformed = errors.New("mcap: malformed record")

// nextRecord splits the record at the start of data. n is the full record
// length including its prefix.
func nextRecord(data []byte) (op OpCode, body []byte, n int, err error) {
	if len(data) < recordPrefixLen {
		return 0, nil, 0, errors.Wrapf(ErrMalformed, "truncated record prefix (%d bytes)", len(data))
	}
	op = OpCode(data[0])
	length := binary.LittleEndian.Uint64(data[1:])
	if length > uint64(len(data)-recordPrefixLen) {
		return op, nil, 0, errors.Wrapf(ErrMalformed, "%s length %d exceeds remaining %d bytes", op, length, len(data)-recordPrefixLen)
	}
	n = recordPrefixLen + int(length)
	return op, data[recordPrefixLen:n], n, nil
}

// parseRecord decodes a record body. Trailing bytes after the known fields
// are ignored, except for Message where they are the payload.
func parseRecord(op OpCode, body []byte) (Record, error) {
	r := &fieldReader{b: body, op: op}
	var rec Record
	switch op {
	case OpHeader:
		rec = &Header{Profile: r.str("profile"), Library: r.str("library")}
	case OpFooter:
		rec = &Footer{SummaryStart: r.u64("summary_start"), SummaryOffsetStart: r.u64("summary_offset_start"), SummaryCRC: r.u32("summary_crc")}
	case OpSchema:
		rec = &Schema{ID: r.u16("id"), Name: r.str("name"), Encoding: r.str("encoding"), Data: r.prefixedBytes("data")}
	case OpChannel:
		rec = &Channel{
			ID:              r.u16("id"),
			SchemaID:        r.u16("schema_id"),
			Topic:           r.str("topic"),
			MessageEncoding: r.str("message_encoding"),
			Metadata:        r.stringMap("metadata"),
		}
	case OpMessage:
		rec = &Message{
			ChannelID:   r.u16("channel_id"),
			Sequence:    r.u32("sequence"),
			LogTime:     r.u64("log_time"),
			PublishTime: r.u64("publish_time"),
			Data:        r.rest(),
		}
	case OpChunk:
		rec = &Chunk{
			MessageStartTime: r.u64("message_start_time"),
			MessageEndTime:   r.u64("message_end_time"),
			UncompressedSize: r.u64("uncompressed_size"),
			UncompressedCRC:  r.u32("uncompressed_crc"),
			Compression:      r.str("compression"),
			Records:          r.longBytes("records"),
		}
	case OpMessageIndex:
		idx := &MessageIndex{ChannelID: r.u16("channel_id")}
		entries := r.prefixedBytes("records")
		if r.err == nil && len(entries)%16 != 0 {
			r.fail("records", "length is not a multiple of 16")
		}
		for i := 0; r.err == nil && i < len(entries); i += 16 {
			idx.Records = append(idx.Records, MessageIndexEntry{
				Timestamp: binary.LittleEndian.Uint64(entries[i:]),
				Offset:    binary.LittleEndian.Uint64(entries[i+8:]),
			})
		}
		rec = idx
	case OpChunkIndex:
		rec = &ChunkIndex{
			MessageStartTime:    r.u64("message_start_time"),
			MessageEndTime:      r.u64("message_end_time"),
			ChunkStartOffset:    r.u64("chunk_start_offset"),
			ChunkLength:         r.u64("chunk_length"),
			MessageIndexOffsets: r.uint64Map("message_index_offsets"),
			MessageIndexLength:  r.u64("message_index_length"),
			Compression:         r.str("compression"),
			CompressedSize:      r.u64("compressed_size"),
			UncompressedSize:    r.u64("uncompressed_size"),
		}
	case OpAttachment:
		a := &Attachment{
			LogTime:    r.u64("log_time"),
			CreateTime: r.u64("create_time"),
			Name:       r.str("name"),
			MediaType:  r.str("media_type"),
			Data:       r.longBytes("data"),
		}
		r.u32("crc")
		rec = a
	case OpAttachmentIndex:
		rec = &AttachmentIndex{
			Offset:     r.u64("offset"),
			Length:     r.u64("length"),
			LogTime:    r.u64("log_time"),
			CreateTime: r.u64("create_time"),
			DataSize:   r.u64("data_size"),
			Name:       r.str("name"),
			MediaType:  r.str("media_type"),
		}
	case OpStatistics:
		rec = &Statistics{
			MessageCount:         r.u64("message_count"),
			SchemaCount:          r.u16("schema_count"),
			ChannelCount:         r.u32("channel_count"),
			AttachmentCount:      r.u32("attachment_count"),
			MetadataCount:        r.u32("metadata_count"),
			ChunkCount:           r.u32("chunk_count"),
			MessageStartTime:     r.u64("message_start_time"),
			MessageEndTime:       r.u64("message_end_time"),
			ChannelMessageCounts: r.uint64Map("channel_message_counts"),
		}
	case OpMetadata:
		rec = &Metadata{Name: r.str("name"), Metadata: r.stringMap("metadata")}
	case OpMetadataIndex:
		rec = &MetadataIndex{Offset: r.u64("offset"), Length: r.u64("length"), Name: r.str("name")}
	case OpSummaryOffset:
		rec = &SummaryOffset{GroupOpcode: OpCode(r.u8("group_opcode")), GroupStart: r.u64("group_start"), GroupLength: r.u64("group_length")}
	case OpDataEnd:
		rec = &DataEnd{DataSectionCRC: r.u32("data_section_crc")}
	default:
		return nil, errors.Wrapf(ErrMalformed, "unknown opcode 0x%02x", byte(op))
	}
	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}

// fieldReader consumes little-endian fields from a record body, keeping the
// first failure.
type fieldReader struct {
	b   []byte
	op  OpCode
	err error
}

func (r *fieldReader) fail(field, reason string) {
	if r.err == nil {
		r.err = errors.Wrapf(ErrMalformed, "%s %s: %s", r.op, field, reason)
	}
}

func (r *fieldReader) take(field string, n uint64) []byte {
	if r.err != nil {
		return nil
	}
	if n > uint64(len(r.b)) {
		r.fail(field, "truncated")
		return nil
	}
	p := r.b[:n]
	r.b = r.b[n:]
	return p
}

func (r *fieldReader) u8(field string) byte {
	if p := r.take(field, 1); p != nil {
		return p[0]
	}
	return 0
}

func (r *fieldReader) u16(field string) uint16 {
	if p := r.take(field, 2); p != nil {
		return binary.LittleEndian.Uint16(p)
	}
	return 0
}

func (r *fieldReader) u32(field string) uint32 {
	if p := r.take(field, 4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

func (r *fieldReader) u64(field string) uint64 {
	if p := r.take(field, 8); p != nil {
		return binary.LittleEndian.Uint64(p)
	}
	return 0
}

func (r *fieldReader) prefixedBytes(field string) []byte {
	n := r.u32(field)
	return r.take(field, uint64(n))
}

func (r *fieldReader) str(field string) string {
	return string(r.prefixedBytes(field))
}

func (r *fieldReader) longBytes(field string) []byte {
	n := r.u64(field)
	return r.take(field, n)
}

func (r *fieldReader) rest() []byte {
	if r.err != nil {
		return nil
	}
	p := r.b
	r.b = nil
	return p
}

func (r *fieldReader) stringMap(field string) map[string]string {
	sub := &fieldReader{b: r.prefixedBytes(field), op: r.op}
	if r.err != nil {
		return nil
	}
	m := make(map[string]string)
	for sub.err == nil && len(sub.b) > 0 {
		k := sub.str(field)
		v := sub.str(field)
		m[k] = v
	}
	if sub.err != nil {
		r.err = sub.err
	}
	return m
}

func (r *fieldReader) uint64Map(field string) map[uint16]uint64 {
	entries := r.prefixedBytes(field)
	if r.err != nil {
		return nil
	}
	if len(entries)%10 != 0 {
		r.fail(field, "length is not a multiple of 10")
		return nil
	}
	m := make(map[uint16]uint64, len(entries)/10)
	for i := 0; i < len(entries); i += 10 {
		m[binary.LittleEndian.Uint16(entries[i:])] = binary.LittleEndian.Uint64(entries[i+2:])
	}
	return m
}
