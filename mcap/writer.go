package mcap

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// State is a Writer's position in its lifecycle.
type State int

const (
	StateCreated State = iota
	StateOpened
	StateActive
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpened:
		return "opened"
	case StateActive:
		return "active"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Writer streams records into an MCAP file.
//
// Usage:
//
//	w, _ := mcap.Create("out.mcap", mcap.WithProfile("ros2"))
//	defer w.Close()
//	_ = w.Open()
//	schemaID, _ := w.RegisterSchema("pkg/Msg", "ros2msg", def)
//	channelID, _ := w.RegisterChannel(schemaID, "/topic", "cdr", nil)
//	_ = w.WriteMessage(&mcap.Message{ChannelID: channelID, LogTime: ts, Data: payload})
//
// Messages are buffered only until the active chunk reaches the configured
// chunk size; the summary and footer are written by Close.
type Writer struct {
	out  *writeSizer
	file *os.File // set by Create
	cfg  config
	log  *zap.Logger
	comp compressor

	state State
	err   error // first sink failure; offsets are unreliable after it

	chunk    *chunkBuffer
	index    *indexer
	schemas  []*Schema  // schemas[i].ID == i+1
	channels []*Channel // channels[i].ID == i+1

	rec        []byte // scratch for a single record
	compressed []byte
	frame      []byte // chunk record plus its message indexes
}

// NewWriter returns a Writer in the created state. Nothing is written to out
// until Open.
func NewWriter(out io.Writer, opts ...Option) (*Writer, error) {
	cfg := newConfig(opts)
	if cfg.chunkSize <= 0 {
		return nil, errors.Errorf("mcap: chunk size must be positive, got %d", cfg.chunkSize)
	}
	comp, err := newCompressor(cfg.compression)
	if err != nil {
		return nil, err
	}
	return &Writer{
		out:   newWriteSizer(out),
		cfg:   cfg,
		log:   cfg.logger.With(zap.String("service", "mcap")),
		comp:  comp,
		chunk: newChunkBuffer(),
		index: newIndexer(),
	}, nil
}

// Create creates a file at path and returns a Writer that owns it. Close
// also closes the file.
func Create(path string, opts ...Option) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// State returns the current lifecycle state.
func (w *Writer) State() State {
	return w.state
}

// Open writes the leading magic and the Header record.
func (w *Writer) Open() error {
	if w.state != StateCreated {
		return &InvalidStateError{Op: "open", State: w.state}
	}
	w.state = StateOpened
	buf := append(w.rec[:0], Magic...)
	buf, err := AppendRecord(buf, &Header{Profile: w.cfg.profile, Library: w.cfg.library}, nil)
	if err != nil {
		w.state = StateCreated
		return err
	}
	w.rec = buf
	if err := w.emit("header", buf); err != nil {
		return err
	}
	w.state = StateActive
	return nil
}

// RegisterSchema assigns the next schema id and writes the Schema record
// into the active chunk.
func (w *Writer) RegisterSchema(name, encoding string, data []byte) (uint16, error) {
	if err := w.checkActive("register schema"); err != nil {
		return 0, err
	}
	if len(w.schemas) >= math.MaxUint16 {
		return 0, &EncodingError{Record: OpSchema, Field: "id", Reason: "schema ids exhausted"}
	}
	s := &Schema{
		ID:       uint16(len(w.schemas) + 1),
		Name:     name,
		Encoding: encoding,
		Data:     append([]byte(nil), data...),
	}
	rec, err := AppendRecord(w.rec[:0], s, nil)
	if err != nil {
		return 0, err
	}
	w.rec = rec
	w.chunk.appendRecord(rec)
	w.schemas = append(w.schemas, s)
	w.index.schemaRegistered()
	return s.ID, nil
}

// RegisterChannel assigns the next channel id and writes the Channel record
// into the active chunk. schemaID must be 0 or an id returned by
// RegisterSchema.
func (w *Writer) RegisterChannel(schemaID uint16, topic, messageEncoding string, metadata map[string]string) (uint16, error) {
	if err := w.checkActive("register channel"); err != nil {
		return 0, err
	}
	if schemaID != 0 && int(schemaID) > len(w.schemas) {
		return 0, &UnknownReferenceError{Kind: "schema", ID: schemaID}
	}
	if len(w.channels) >= math.MaxUint16 {
		return 0, &EncodingError{Record: OpChannel, Field: "id", Reason: "channel ids exhausted"}
	}
	c := &Channel{
		ID:              uint16(len(w.channels) + 1),
		SchemaID:        schemaID,
		Topic:           topic,
		MessageEncoding: messageEncoding,
		Metadata:        make(map[string]string, len(metadata)),
	}
	for k, v := range metadata {
		c.Metadata[k] = v
	}
	rec, err := AppendRecord(w.rec[:0], c, nil)
	if err != nil {
		return 0, err
	}
	w.rec = rec
	w.chunk.appendRecord(rec)
	w.channels = append(w.channels, c)
	w.index.channelRegistered()
	return c.ID, nil
}

// WriteMessage appends m to the active chunk. When the chunk reaches the
// configured size it is sealed and written together with its message
// indexes.
func (w *Writer) WriteMessage(m *Message) error {
	if err := w.checkActive("write message"); err != nil {
		return err
	}
	if m.ChannelID == 0 || int(m.ChannelID) > len(w.channels) {
		return &UnknownReferenceError{Kind: "channel", ID: m.ChannelID}
	}
	rec, err := AppendRecord(w.rec[:0], m, nil)
	if err != nil {
		return err
	}
	w.rec = rec
	offset := w.chunk.appendMessage(rec, m.LogTime)
	w.index.recordMessage(m.ChannelID, m.LogTime, offset)
	if int64(w.chunk.size()) >= w.cfg.chunkSize {
		return w.flushChunk()
	}
	return nil
}

// WriteMetadata writes a Metadata record to the data section, outside any
// chunk.
func (w *Writer) WriteMetadata(name string, metadata map[string]string) error {
	if err := w.checkActive("write metadata"); err != nil {
		return err
	}
	rec, err := AppendRecord(w.rec[:0], &Metadata{Name: name, Metadata: metadata}, nil)
	if err != nil {
		return err
	}
	w.rec = rec
	offset := w.out.Size()
	if err := w.emit("metadata", rec); err != nil {
		return err
	}
	w.index.metadataWritten(&MetadataIndex{
		Offset: offset,
		Length: uint64(len(rec)),
		Name:   name,
	})
	return nil
}

// WriteAttachment writes an Attachment record to the data section, outside
// any chunk.
func (w *Writer) WriteAttachment(a *Attachment) error {
	if err := w.checkActive("write attachment"); err != nil {
		return err
	}
	rec, err := AppendRecord(w.rec[:0], a, nil)
	if err != nil {
		return err
	}
	w.rec = rec
	offset := w.out.Size()
	if err := w.emit("attachment", rec); err != nil {
		return err
	}
	w.index.attachmentWritten(&AttachmentIndex{
		Offset:     offset,
		Length:     uint64(len(rec)),
		LogTime:    a.LogTime,
		CreateTime: a.CreateTime,
		DataSize:   uint64(len(a.Data)),
		Name:       a.Name,
		MediaType:  a.MediaType,
	})
	return nil
}

// FlushChunk seals the active chunk, if it holds any records, and writes it.
func (w *Writer) FlushChunk() error {
	if err := w.checkActive("flush chunk"); err != nil {
		return err
	}
	if w.chunk.empty() {
		return nil
	}
	return w.flushChunk()
}

// Statistics returns a snapshot of the running statistics.
func (w *Writer) Statistics() Statistics {
	return w.index.statistics()
}

// ChunkIndexes returns the indexes of the chunks written so far, in file
// order.
func (w *Writer) ChunkIndexes() []ChunkIndex {
	out := make([]ChunkIndex, len(w.index.chunkIndexes))
	for i, ci := range w.index.chunkIndexes {
		out[i] = *ci
	}
	return out
}

// Close seals the active chunk and writes the data end record, the summary
// section, the summary offsets, the footer and the closing magic. Closing a
// closed writer is a no-op. Closing a writer that was never opened writes
// nothing.
func (w *Writer) Close() error {
	if w.state == StateClosed {
		return nil
	}
	var err error
	switch {
	case w.err != nil:
		err = w.err
	case w.state == StateActive:
		if !w.chunk.empty() {
			err = w.flushChunk()
		}
		if err == nil {
			w.state = StateFinalizing
			err = w.finalize()
		}
	}
	w.state = StateClosed
	if w.file != nil {
		err = multierr.Append(err, w.file.Close())
	}
	return err
}

func (w *Writer) checkActive(op string) error {
	if w.err != nil && w.state != StateClosed {
		return w.err
	}
	if w.state != StateActive {
		return &InvalidStateError{Op: op, State: w.state}
	}
	return nil
}

// emit hands one or more complete records to the sink in a single write.
func (w *Writer) emit(op string, p []byte) error {
	if _, err := w.out.Write(p); err != nil {
		w.err = &SinkWriteError{Op: op, Err: err}
		return w.err
	}
	return nil
}

func (w *Writer) flushChunk() error {
	payload := w.chunk.sealChunk()
	compressed, err := w.comp.compress(w.compressed, payload.records)
	if err != nil {
		w.err = errors.Wrap(err, "mcap: compress chunk")
		return w.err
	}
	w.compressed = compressed

	frame, err := AppendRecord(w.frame[:0], &Chunk{
		MessageStartTime: payload.messageStartTime,
		MessageEndTime:   payload.messageEndTime,
		UncompressedSize: uint64(len(payload.records)),
		UncompressedCRC:  payload.crc,
		Compression:      string(w.cfg.compression),
		Records:          compressed,
	}, nil)
	if err != nil {
		w.err = err
		return err
	}

	chunkStart := w.out.Size()
	chunkLength := uint64(len(frame))
	offsets := make(map[uint16]uint64)
	for _, idx := range w.index.messageIndexes() {
		offsets[idx.ChannelID] = chunkStart + uint64(len(frame))
		if frame, err = AppendRecord(frame, idx, nil); err != nil {
			w.err = err
			return err
		}
	}
	w.frame = frame
	if err := w.emit("chunk", frame); err != nil {
		return err
	}

	w.index.chunkSealed(&ChunkIndex{
		MessageStartTime:    payload.messageStartTime,
		MessageEndTime:      payload.messageEndTime,
		ChunkStartOffset:    chunkStart,
		ChunkLength:         chunkLength,
		MessageIndexOffsets: offsets,
		MessageIndexLength:  uint64(len(frame)) - chunkLength,
		Compression:         string(w.cfg.compression),
		CompressedSize:      uint64(len(compressed)),
		UncompressedSize:    uint64(len(payload.records)),
	})
	w.log.Debug("Chunk written",
		zap.Uint64("chunk_start", chunkStart),
		zap.Uint64("chunk_length", chunkLength),
		zap.Int("messages", payload.messageCount))
	return nil
}

// summaryGroup is a run of summary records sharing an opcode, with offsets
// relative to the start of the summary section.
type summaryGroup struct {
	op     OpCode
	start  uint64
	length uint64
}

func (w *Writer) finalize() error {
	dataEnd, err := AppendRecord(w.rec[:0], &DataEnd{DataSectionCRC: w.out.Checksum()}, nil)
	if err != nil {
		return err
	}
	w.rec = dataEnd
	if err := w.emit("data end", dataEnd); err != nil {
		return err
	}

	summaryStart := w.out.Size()
	stats := w.index.statistics()

	var (
		tail   []byte
		groups []summaryGroup
	)
	appendGroup := func(op OpCode, records []Record) error {
		if len(records) == 0 {
			return nil
		}
		start := len(tail)
		for _, r := range records {
			if tail, err = AppendRecord(tail, r, nil); err != nil {
				return err
			}
		}
		groups = append(groups, summaryGroup{op: op, start: uint64(start), length: uint64(len(tail) - start)})
		return nil
	}

	schemas := make([]Record, len(w.schemas))
	for i, s := range w.schemas {
		schemas[i] = s
	}
	channels := make([]Record, len(w.channels))
	for i, c := range w.channels {
		channels[i] = c
	}
	chunkIndexes := make([]Record, len(w.index.chunkIndexes))
	for i, ci := range w.index.chunkIndexes {
		chunkIndexes[i] = ci
	}
	attachmentIndexes := make([]Record, len(w.index.attachmentIndexes))
	for i, ai := range w.index.attachmentIndexes {
		attachmentIndexes[i] = ai
	}
	metadataIndexes := make([]Record, len(w.index.metadataIndexes))
	for i, mi := range w.index.metadataIndexes {
		metadataIndexes[i] = mi
	}
	for _, g := range []struct {
		op      OpCode
		records []Record
	}{
		{OpSchema, schemas},
		{OpChannel, channels},
		{OpChunkIndex, chunkIndexes},
		{OpAttachmentIndex, attachmentIndexes},
		{OpMetadataIndex, metadataIndexes},
		{OpStatistics, []Record{&stats}},
	} {
		if err := appendGroup(g.op, g.records); err != nil {
			return err
		}
	}

	footer := &Footer{SummaryStart: summaryStart}
	if !w.cfg.skipSummaryOffsets {
		footer.SummaryOffsetStart = summaryStart + uint64(len(tail))
		for _, g := range groups {
			tail, err = AppendRecord(tail, &SummaryOffset{
				GroupOpcode: g.op,
				GroupStart:  summaryStart + g.start,
				GroupLength: g.length,
			}, nil)
			if err != nil {
				return err
			}
		}
	}

	// The summary CRC covers everything from the summary start through the
	// footer's summary_offset_start field.
	crcEnd := len(tail) + recordPrefixLen + 8 + 8
	if tail, err = AppendRecord(tail, footer, nil); err != nil {
		return err
	}
	footer.SummaryCRC = crc32.Checksum(tail[:crcEnd], crcTable)
	binary.LittleEndian.PutUint32(tail[crcEnd:], footer.SummaryCRC)
	tail = append(tail, Magic...)

	if err := w.emit("summary", tail); err != nil {
		return err
	}
	w.log.Info("MCAP file finalized",
		zap.Uint64("messages", stats.MessageCount),
		zap.Uint32("chunks", stats.ChunkCount),
		zap.Uint64("bytes", w.out.Size()))
	return nil
}
