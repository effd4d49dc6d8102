package mcap

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Header(t *testing.T) {
	b, err := Encode(&Header{Profile: "ros2", Library: "x"})
	require.NoError(t, err)
	want := []byte{
		byte(OpHeader),
		13, 0, 0, 0, 0, 0, 0, 0,
		4, 0, 0, 0, 'r', 'o', 's', '2',
		1, 0, 0, 0, 'x',
	}
	assert.Equal(t, want, b)
}

func TestEncode_Message(t *testing.T) {
	b, err := Encode(&Message{ChannelID: 3, Sequence: 7, LogTime: 10, PublishTime: 11, Data: []byte("hi")})
	require.NoError(t, err)
	require.Len(t, b, recordPrefixLen+2+4+8+8+2)
	assert.Equal(t, byte(OpMessage), b[0])
	assert.Equal(t, uint64(24), binary.LittleEndian.Uint64(b[1:]))
	assert.Equal(t, uint16(3), binary.LittleEndian.Uint16(b[9:]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(b[11:]))
	assert.Equal(t, uint64(10), binary.LittleEndian.Uint64(b[15:]))
	assert.Equal(t, uint64(11), binary.LittleEndian.Uint64(b[23:]))
	assert.Equal(t, "hi", string(b[31:]))
}

func TestEncode_ReservedIDs(t *testing.T) {
	for _, r := range []Record{
		&Schema{ID: 0, Name: "s"},
		&Channel{ID: 0, Topic: "/t"},
		&Message{ChannelID: 0},
	} {
		_, err := Encode(r)
		var encErr *EncodingError
		require.True(t, errors.As(err, &encErr), "%s: %v", r.OpCode(), err)
		assert.Equal(t, r.OpCode(), encErr.Record)
		assert.True(t, errors.Is(err, ErrEncoding))
	}
}

func TestEncode_FieldTooLong(t *testing.T) {
	defer func(n uint64) { maxPrefixedLength = n }(maxPrefixedLength)
	maxPrefixedLength = 4

	_, err := Encode(&Schema{ID: 1, Name: "12345"})
	var encErr *EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, "name", encErr.Field)

	_, err = Encode(&Channel{ID: 1, Topic: "/t", Metadata: map[string]string{"k": "v"}})
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, "metadata", encErr.Field)

	_, err = Encode(&Schema{ID: 1, Name: "1234"})
	require.NoError(t, err)
}

func TestAppendRecord_ErrorLeavesInputs(t *testing.T) {
	dst := []byte{1, 2, 3}
	crc := crc32.NewIEEE()
	out, err := AppendRecord(dst, &Schema{ID: 0}, crc)
	require.Error(t, err)
	assert.Equal(t, []byte{1, 2, 3}, out)
	assert.Equal(t, crc32.NewIEEE().Sum32(), crc.Sum32())
}

func TestAppendRecord_UpdatesCRC(t *testing.T) {
	crc := crc32.NewIEEE()
	out, err := AppendRecord([]byte("prefix"), &DataEnd{DataSectionCRC: 9}, crc)
	require.NoError(t, err)
	assert.Equal(t, crc32.ChecksumIEEE(out[len("prefix"):]), crc.Sum32())
}

func TestEncode_MapsSortedByKey(t *testing.T) {
	a, err := Encode(&Metadata{Name: "m", Metadata: map[string]string{"b": "2", "a": "1", "c": "3"}})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		b, err := Encode(&Metadata{Name: "m", Metadata: map[string]string{"c": "3", "a": "1", "b": "2"}})
		require.NoError(t, err)
		require.Equal(t, a, b)
	}
	rec, err := parseRecord(OpMetadata, a[recordPrefixLen:])
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, rec.(*Metadata).Metadata)
	// first key after name and map length
	assert.Equal(t, "a", string(a[recordPrefixLen+4+1+4+4:][:1]))
}

func TestEncode_AttachmentCRC(t *testing.T) {
	b, err := Encode(&Attachment{LogTime: 1, CreateTime: 2, Name: "calib", MediaType: "text/plain", Data: []byte("abc")})
	require.NoError(t, err)
	body := b[recordPrefixLen:]
	got := binary.LittleEndian.Uint32(body[len(body)-4:])
	assert.Equal(t, crc32.ChecksumIEEE(body[:len(body)-4]), got)
}

func TestParseRecord_RoundTrip(t *testing.T) {
	records := []Record{
		&Header{Profile: "p", Library: "l"},
		&Footer{SummaryStart: 1, SummaryOffsetStart: 2, SummaryCRC: 3},
		&Schema{ID: 1, Name: "n", Encoding: "e", Data: []byte{1, 2}},
		&Channel{ID: 2, SchemaID: 1, Topic: "/t", MessageEncoding: "cdr", Metadata: map[string]string{"k": "v"}},
		&Message{ChannelID: 2, Sequence: 1, LogTime: 5, PublishTime: 6, Data: []byte("x")},
		&Chunk{MessageStartTime: 1, MessageEndTime: 2, UncompressedSize: 3, UncompressedCRC: 4, Compression: "zstd", Records: []byte{9}},
		&MessageIndex{ChannelID: 2, Records: []MessageIndexEntry{{Timestamp: 5, Offset: 0}, {Timestamp: 1, Offset: 40}}},
		&ChunkIndex{MessageStartTime: 1, MessageEndTime: 2, ChunkStartOffset: 3, ChunkLength: 4,
			MessageIndexOffsets: map[uint16]uint64{1: 5, 2: 6}, MessageIndexLength: 7, Compression: "lz4",
			CompressedSize: 8, UncompressedSize: 9},
		&AttachmentIndex{Offset: 1, Length: 2, LogTime: 3, CreateTime: 4, DataSize: 5, Name: "a", MediaType: "m"},
		&Statistics{MessageCount: 3, SchemaCount: 1, ChannelCount: 1, ChunkCount: 1, MessageStartTime: 5,
			MessageEndTime: 20, ChannelMessageCounts: map[uint16]uint64{1: 3}},
		&MetadataIndex{Offset: 1, Length: 2, Name: "md"},
		&SummaryOffset{GroupOpcode: OpChunkIndex, GroupStart: 10, GroupLength: 20},
		&DataEnd{DataSectionCRC: 42},
	}
	for _, r := range records {
		b, err := Encode(r)
		require.NoError(t, err)
		op, body, n, err := nextRecord(b)
		require.NoError(t, err)
		require.Equal(t, len(b), n)
		got, err := parseRecord(op, body)
		require.NoError(t, err)
		assert.Equal(t, r, got, "%s", op)
	}
}

func TestNextRecord_Truncated(t *testing.T) {
	b, err := Encode(&Header{Library: "lib"})
	require.NoError(t, err)
	_, _, _, err = nextRecord(b[:len(b)-1])
	assert.True(t, errors.Is(err, ErrMalformed))
	_, _, _, err = nextRecord(b[:4])
	assert.True(t, errors.Is(err, ErrMalformed))
}
