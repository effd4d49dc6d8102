package mcap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func writeSample(t *testing.T, opts ...Option) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := newTestWriter(t, &buf, append([]Option{WithChunkSize(512)}, opts...)...)
	s, err := w.RegisterSchema("s", "jsonschema", []byte(`{"type":"object"}`))
	require.NoError(t, err)
	a, err := w.RegisterChannel(s, "/a", "json", nil)
	require.NoError(t, err)
	b, err := w.RegisterChannel(0, "/b", "raw", map[string]string{"k": "v"})
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		ch := a
		if i%3 == 0 {
			ch = b
		}
		require.NoError(t, w.WriteMessage(&Message{ChannelID: ch, Sequence: uint32(i), LogTime: uint64(1000 - i), Data: payload(30, byte(i))}))
	}
	require.NoError(t, w.WriteMetadata("m", map[string]string{"x": "y"}))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestValidate(t *testing.T) {
	data := writeSample(t)
	rep, err := Validate(bytes.NewReader(data), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultLibrary, rep.Library)
	assert.Equal(t, uint64(40), rep.Messages)
	assert.Equal(t, 1, rep.Schemas)
	assert.Equal(t, 2, rep.Channels)
	assert.Equal(t, 1, rep.Metadata)
	assert.Greater(t, rep.Chunks, 1)
	require.NotNil(t, rep.Statistics)
	assert.Equal(t, uint64(40), rep.Statistics.MessageCount)
	assert.Equal(t, uint64(961), rep.Statistics.MessageStartTime)
	assert.Equal(t, uint64(1000), rep.Statistics.MessageEndTime)
}

func TestValidate_Unclosed(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWriter(t, &buf, WithChunkSize(64))
	ch, err := w.RegisterChannel(0, "/t", "raw", nil)
	require.NoError(t, err)
	require.NoError(t, w.WriteMessage(&Message{ChannelID: ch, Data: payload(100, 1)}))

	_, err = Validate(bytes.NewReader(buf.Bytes()), nil)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestValidate_CorruptChunk(t *testing.T) {
	data := writeSample(t)
	f := decodeFile(t, data)
	// flip the last payload byte of the first chunk
	ci := f.ofType(OpChunkIndex)[0].(*ChunkIndex)
	data[ci.ChunkStartOffset+ci.ChunkLength-1] ^= 0xFF

	_, err := Validate(bytes.NewReader(data), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.Contains(t, err.Error(), "crc")
}

func TestValidate_CorruptUncompressedSize(t *testing.T) {
	for _, c := range []Compression{CompressionZSTD, CompressionLZ4} {
		for _, size := range []uint64{1 << 62, 1 << 40, math.MaxUint64, 3} {
			t.Run(fmt.Sprintf("%s/%d", c, size), func(t *testing.T) {
				data := writeSample(t, WithCompression(c))
				ci := decodeFile(t, data).ofType(OpChunkIndex)[0].(*ChunkIndex)
				// uncompressed_size follows the two time fields
				binary.LittleEndian.PutUint64(data[ci.ChunkStartOffset+recordPrefixLen+16:], size)

				var err error
				require.NotPanics(t, func() {
					_, err = Validate(bytes.NewReader(data), zap.NewNop())
				})
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformed))
			})
		}
	}
}

func TestValidate_AttachmentCRC(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWriter(t, &buf)
	require.NoError(t, w.WriteAttachment(&Attachment{Name: "calib.yaml", MediaType: "text/yaml", Data: []byte("k: v")}))
	require.NoError(t, w.Close())
	data := buf.Bytes()

	rep, err := Validate(bytes.NewReader(data), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Attachments)

	ai := decodeFile(t, data).ofType(OpAttachmentIndex)[0].(*AttachmentIndex)
	// last data byte, just before the trailing crc
	data[ai.Offset+ai.Length-5] ^= 0xFF
	_, err = Validate(bytes.NewReader(data), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.Contains(t, err.Error(), `attachment "calib.yaml" crc`)
}

func TestValidate_CorruptSummary(t *testing.T) {
	data := writeSample(t)
	f := decodeFile(t, data)
	footer := f.top[len(f.top)-1].(*Footer)
	// inside the first summary record, past its opcode and length
	data[footer.SummaryStart+recordPrefixLen+2] ^= 0xFF

	_, err := Validate(bytes.NewReader(data), nil)
	require.Error(t, err)
}

func TestValidate_BadMagic(t *testing.T) {
	_, err := Validate(bytes.NewReader([]byte("not an mcap file at all")), nil)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestValidateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.mcap")
	require.NoError(t, os.WriteFile(path, writeSample(t, WithCompression(CompressionZSTD)), 0o644))
	rep, err := ValidateFile(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, uint64(40), rep.Messages)

	_, err = ValidateFile(filepath.Join(t.TempDir(), "missing.mcap"), zap.NewNop())
	require.Error(t, err)
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mcap")
	w, err := Create(path, WithProfile("x"))
	require.NoError(t, err)
	require.NoError(t, w.Open())
	ch, err := w.RegisterChannel(0, "/t", "raw", nil)
	require.NoError(t, err)
	require.NoError(t, w.WriteMessage(&Message{ChannelID: ch, LogTime: 9}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	rep, err := ValidateFile(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "x", rep.Profile)
	assert.Equal(t, uint64(1), rep.Messages)
}
