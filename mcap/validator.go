package mcap

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Report summarizes a validated file.
type Report struct {
	Profile     string
	Library     string
	Size        int64
	Schemas     int
	Channels    int
	Messages    uint64
	Chunks      int
	Attachments int
	Metadata    int
	// Statistics is the file's Statistics record, if it has one.
	Statistics *Statistics
}

// ValidateFile performs structural validation of the MCAP file at path.
// Problems that do not make the file unreadable are logged as warnings.
func ValidateFile(path string, log *zap.Logger) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open mcap file")
	}
	defer f.Close()
	rep, err := Validate(f, log)
	if err != nil {
		return nil, err
	}
	log.Info("Validated MCAP file",
		zap.String("path", path),
		zap.String("profile", rep.Profile),
		zap.Uint64("messages", rep.Messages),
		zap.Int("chunks", rep.Chunks),
		zap.Int64("bytes", rep.Size))
	return rep, nil
}

// Validate reads a whole MCAP stream and checks its framing, chunk and
// section CRCs, message and chunk indexes, summary offsets and statistics.
func Validate(r io.Reader, log *zap.Logger) (*Report, error) {
	if log == nil {
		log = zap.NewNop()
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read mcap")
	}
	v := &validator{
		data:     data,
		log:      log,
		rep:      &Report{Size: int64(len(data))},
		schemas:  make(map[uint16]bool),
		channels: make(map[uint16]bool),
		counts:   make(map[uint16]uint64),
	}
	if err := v.run(); err != nil {
		return nil, err
	}
	return v.rep, nil
}

type validator struct {
	data []byte
	log  *zap.Logger
	rep  *Report

	schemas  map[uint16]bool
	channels map[uint16]bool
	counts   map[uint16]uint64

	chunkOffsets []uint64
	startTime    uint64
	endTime      uint64
}

func (v *validator) run() error {
	n := len(Magic)
	if len(v.data) < 2*n || !bytes.Equal(v.data[:n], Magic) {
		return errors.Wrap(ErrMalformed, "missing leading magic")
	}
	if !bytes.Equal(v.data[len(v.data)-n:], Magic) {
		return errors.Wrap(ErrMalformed, "missing trailing magic, file was not closed")
	}
	body := v.data[:len(v.data)-n]

	pos := n
	var (
		lastChunk     []byte
		dataEnd       = -1
		summaryStart  = -1
		summaryOffset = -1
		footer        *Footer
		chunkIndexes  []*ChunkIndex
		summaryOffs   []*SummaryOffset
	)
	for pos < len(body) {
		if footer != nil {
			return errors.Wrapf(ErrMalformed, "record after footer at offset %d", pos)
		}
		op, recBody, size, err := nextRecord(body[pos:])
		if err != nil {
			return errors.Wrapf(err, "offset %d", pos)
		}
		rec, err := parseRecord(op, recBody)
		if err != nil {
			return errors.Wrapf(err, "offset %d", pos)
		}
		if pos == n && op != OpHeader {
			return errors.Wrapf(ErrMalformed, "first record is %s, want header", op)
		}
		inSummary := dataEnd >= 0
		if inSummary && summaryStart < 0 && op != OpFooter {
			summaryStart = pos
		}
		switch rec := rec.(type) {
		case *Header:
			if pos != n {
				return errors.Wrapf(ErrMalformed, "header at offset %d", pos)
			}
			v.rep.Profile, v.rep.Library = rec.Profile, rec.Library
		case *Chunk:
			if inSummary {
				return errors.Wrapf(ErrMalformed, "chunk in summary at offset %d", pos)
			}
			records, err := v.checkChunk(rec)
			if err != nil {
				return errors.Wrapf(err, "chunk at offset %d", pos)
			}
			lastChunk = records
			v.chunkOffsets = append(v.chunkOffsets, uint64(pos))
			v.rep.Chunks++
		case *MessageIndex:
			if lastChunk == nil {
				return errors.Wrapf(ErrMalformed, "message index without chunk at offset %d", pos)
			}
			if err := checkMessageIndex(rec, lastChunk); err != nil {
				return errors.Wrapf(err, "message index at offset %d", pos)
			}
		case *Schema:
			if !inSummary {
				v.schemas[rec.ID] = true
				v.rep.Schemas++
			} else if !v.schemas[rec.ID] {
				v.log.Warn("Summary schema never appears in data section", zap.Uint16("schema_id", rec.ID))
			}
		case *Channel:
			if !inSummary {
				if err := v.addChannel(rec); err != nil {
					return err
				}
			}
		case *Message:
			if err := v.addMessage(rec); err != nil {
				return err
			}
		case *Attachment:
			want := crc32.ChecksumIEEE(recBody[:len(recBody)-4])
			if got := binary.LittleEndian.Uint32(recBody[len(recBody)-4:]); got != 0 && got != want {
				return errors.Wrapf(ErrMalformed, "attachment %q crc %08x, want %08x", rec.Name, got, want)
			}
			v.rep.Attachments++
		case *Metadata:
			v.rep.Metadata++
		case *DataEnd:
			if rec.DataSectionCRC != 0 {
				if want := crc32.ChecksumIEEE(v.data[:pos]); rec.DataSectionCRC != want {
					return errors.Wrapf(ErrMalformed, "data section crc %08x, want %08x", rec.DataSectionCRC, want)
				}
			}
			dataEnd = pos
		case *ChunkIndex:
			chunkIndexes = append(chunkIndexes, rec)
		case *Statistics:
			v.rep.Statistics = rec
		case *SummaryOffset:
			if summaryOffset < 0 {
				summaryOffset = pos
			}
			summaryOffs = append(summaryOffs, rec)
		case *Footer:
			footer = rec
			if err := v.checkFooter(rec, pos, summaryStart, summaryOffset); err != nil {
				return err
			}
		}
		if op != OpChunk && op != OpMessageIndex {
			lastChunk = nil
		}
		pos += size
	}
	if footer == nil {
		return errors.Wrap(ErrMalformed, "missing footer")
	}
	if dataEnd < 0 {
		v.log.Warn("Missing data end record")
	}
	if err := v.checkChunkIndexes(chunkIndexes); err != nil {
		return err
	}
	for _, so := range summaryOffs {
		if err := v.checkSummaryOffset(so); err != nil {
			return err
		}
	}
	return v.checkStatistics()
}

func (v *validator) addChannel(c *Channel) error {
	if c.SchemaID != 0 && !v.schemas[c.SchemaID] {
		return errors.Wrapf(ErrMalformed, "channel %d references unknown schema %d", c.ID, c.SchemaID)
	}
	v.channels[c.ID] = true
	v.rep.Channels++
	return nil
}

func (v *validator) addMessage(m *Message) error {
	if !v.channels[m.ChannelID] {
		return errors.Wrapf(ErrMalformed, "message references unknown channel %d", m.ChannelID)
	}
	if v.rep.Messages == 0 || m.LogTime < v.startTime {
		v.startTime = m.LogTime
	}
	if m.LogTime > v.endTime {
		v.endTime = m.LogTime
	}
	v.rep.Messages++
	v.counts[m.ChannelID]++
	return nil
}

// checkChunk verifies the chunk CRC and walks its records. It returns the
// uncompressed records.
func (v *validator) checkChunk(c *Chunk) ([]byte, error) {
	records, err := decompress(Compression(c.Compression), c.Records, c.UncompressedSize)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%v", err)
	}
	if uint64(len(records)) != c.UncompressedSize {
		return nil, errors.Wrapf(ErrMalformed, "uncompressed size %d, want %d", len(records), c.UncompressedSize)
	}
	if c.UncompressedCRC != 0 {
		if got := crc32.ChecksumIEEE(records); got != c.UncompressedCRC {
			return nil, errors.Wrapf(ErrMalformed, "crc %08x, want %08x", got, c.UncompressedCRC)
		}
	}
	for pos := 0; pos < len(records); {
		op, body, size, err := nextRecord(records[pos:])
		if err != nil {
			return nil, err
		}
		rec, err := parseRecord(op, body)
		if err != nil {
			return nil, err
		}
		switch rec := rec.(type) {
		case *Schema:
			v.schemas[rec.ID] = true
			v.rep.Schemas++
		case *Channel:
			if err := v.addChannel(rec); err != nil {
				return nil, err
			}
		case *Message:
			if rec.LogTime < c.MessageStartTime || rec.LogTime > c.MessageEndTime {
				return nil, errors.Wrapf(ErrMalformed, "message log time %d outside chunk range [%d, %d]",
					rec.LogTime, c.MessageStartTime, c.MessageEndTime)
			}
			if err := v.addMessage(rec); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Wrapf(ErrMalformed, "%s record inside chunk", op)
		}
		pos += size
	}
	return records, nil
}

func checkMessageIndex(idx *MessageIndex, records []byte) error {
	for _, e := range idx.Records {
		if e.Offset >= uint64(len(records)) {
			return errors.Wrapf(ErrMalformed, "offset %d beyond chunk", e.Offset)
		}
		op, body, _, err := nextRecord(records[e.Offset:])
		if err != nil {
			return err
		}
		if op != OpMessage {
			return errors.Wrapf(ErrMalformed, "offset %d points at %s", e.Offset, op)
		}
		rec, err := parseRecord(op, body)
		if err != nil {
			return err
		}
		m := rec.(*Message)
		if m.ChannelID != idx.ChannelID || m.LogTime != e.Timestamp {
			return errors.Wrapf(ErrMalformed, "offset %d holds channel %d at %d, want channel %d at %d",
				e.Offset, m.ChannelID, m.LogTime, idx.ChannelID, e.Timestamp)
		}
	}
	return nil
}

func (v *validator) checkFooter(f *Footer, pos, summaryStart, summaryOffset int) error {
	if summaryStart < 0 {
		if f.SummaryStart != 0 {
			return errors.Wrapf(ErrMalformed, "footer summary_start %d, file has no summary", f.SummaryStart)
		}
		return nil
	}
	if f.SummaryStart != uint64(summaryStart) {
		return errors.Wrapf(ErrMalformed, "footer summary_start %d, want %d", f.SummaryStart, summaryStart)
	}
	if summaryOffset < 0 {
		v.log.Warn("Missing summary offset section")
	} else if f.SummaryOffsetStart != uint64(summaryOffset) {
		return errors.Wrapf(ErrMalformed, "footer summary_offset_start %d, want %d", f.SummaryOffsetStart, summaryOffset)
	}
	if f.SummaryCRC != 0 {
		end := pos + recordPrefixLen + 8 + 8
		if want := crc32.ChecksumIEEE(v.data[summaryStart:end]); f.SummaryCRC != want {
			return errors.Wrapf(ErrMalformed, "summary crc %08x, want %08x", f.SummaryCRC, want)
		}
	}
	return nil
}

func (v *validator) checkChunkIndexes(idxs []*ChunkIndex) error {
	if len(idxs) == 0 {
		if len(v.chunkOffsets) > 0 {
			v.log.Warn("File has chunks but no chunk indexes")
		}
		return nil
	}
	if len(idxs) != len(v.chunkOffsets) {
		return errors.Wrapf(ErrMalformed, "%d chunk indexes for %d chunks", len(idxs), len(v.chunkOffsets))
	}
	for i, ci := range idxs {
		if ci.ChunkStartOffset != v.chunkOffsets[i] {
			return errors.Wrapf(ErrMalformed, "chunk index %d points at %d, chunk is at %d", i, ci.ChunkStartOffset, v.chunkOffsets[i])
		}
		op, _, size, err := nextRecord(v.data[ci.ChunkStartOffset:])
		if err != nil || op != OpChunk || uint64(size) != ci.ChunkLength {
			return errors.Wrapf(ErrMalformed, "chunk index %d length %d does not match chunk record", i, ci.ChunkLength)
		}
		for ch, off := range ci.MessageIndexOffsets {
			if off >= uint64(len(v.data)) {
				return errors.Wrapf(ErrMalformed, "chunk index %d message index offset %d out of range", i, off)
			}
			op, body, _, err := nextRecord(v.data[off:])
			if err != nil || op != OpMessageIndex {
				return errors.Wrapf(ErrMalformed, "chunk index %d channel %d offset %d is not a message index", i, ch, off)
			}
			rec, err := parseRecord(op, body)
			if err != nil {
				return err
			}
			if rec.(*MessageIndex).ChannelID != ch {
				return errors.Wrapf(ErrMalformed, "chunk index %d channel %d offset %d indexes another channel", i, ch, off)
			}
		}
	}
	return nil
}

func (v *validator) checkSummaryOffset(so *SummaryOffset) error {
	end := so.GroupStart + so.GroupLength
	if end > uint64(len(v.data)) {
		return errors.Wrapf(ErrMalformed, "summary offset for %s runs past end of file", so.GroupOpcode)
	}
	for pos := so.GroupStart; pos < end; {
		op, _, size, err := nextRecord(v.data[pos:end])
		if err != nil {
			return errors.Wrapf(err, "summary group %s", so.GroupOpcode)
		}
		if op != so.GroupOpcode {
			return errors.Wrapf(ErrMalformed, "summary group %s holds a %s record", so.GroupOpcode, op)
		}
		pos += uint64(size)
	}
	return nil
}

func (v *validator) checkStatistics() error {
	s := v.rep.Statistics
	if s == nil {
		v.log.Warn("Missing statistics record")
		return nil
	}
	if s.MessageCount != v.rep.Messages {
		return errors.Wrapf(ErrMalformed, "statistics message_count %d, file has %d messages", s.MessageCount, v.rep.Messages)
	}
	if int(s.ChunkCount) != v.rep.Chunks {
		return errors.Wrapf(ErrMalformed, "statistics chunk_count %d, file has %d chunks", s.ChunkCount, v.rep.Chunks)
	}
	if v.rep.Messages > 0 && (s.MessageStartTime != v.startTime || s.MessageEndTime != v.endTime) {
		return errors.Wrapf(ErrMalformed, "statistics time range [%d, %d], messages span [%d, %d]",
			s.MessageStartTime, s.MessageEndTime, v.startTime, v.endTime)
	}
	for ch, n := range v.counts {
		if s.ChannelMessageCounts[ch] != n {
			return errors.Wrapf(ErrMalformed, "statistics count for channel %d is %d, file has %d", ch, s.ChannelMessageCounts[ch], n)
		}
	}
	return nil
}
