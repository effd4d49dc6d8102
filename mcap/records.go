package mcap

import "hash/crc32"

// Header is the first record of every file.
type Header struct {
	Profile string
	Library string
}

func (*Header) OpCode() OpCode { return OpHeader }

func (h *Header) appendBody(b *recordBuilder) {
	b.writePrefixedString("profile", h.Profile)
	b.writePrefixedString("library", h.Library)
}

// Footer is the last record of every file. SummaryStart is 0 when the file
// has no summary section; SummaryOffsetStart is 0 when it has no summary
// offset section. SummaryCRC covers the bytes from SummaryStart through
// the footer's SummaryOffsetStart field, as the MCAP format defines it.
type Footer struct {
	SummaryStart       uint64
	SummaryOffsetStart uint64
	SummaryCRC         uint32
}

func (*Footer) OpCode() OpCode { return OpFooter }

func (f *Footer) appendBody(b *recordBuilder) {
	b.write8(f.SummaryStart)
	b.write8(f.SummaryOffsetStart)
	b.write4(f.SummaryCRC)
}

// Schema describes the layout of messages on one or more channels.
type Schema struct {
	ID       uint16
	Name     string
	Encoding string
	Data     []byte
}

func (*Schema) OpCode() OpCode { return OpSchema }

func (s *Schema) appendBody(b *recordBuilder) {
	b.checkID("id", s.ID)
	b.write2(s.ID)
	b.writePrefixedString("name", s.Name)
	b.writePrefixedString("encoding", s.Encoding)
	b.writePrefixedBytes("data", s.Data)
}

// Channel describes a stream of messages. SchemaID 0 means the channel has
// no schema.
type Channel struct {
	ID              uint16
	SchemaID        uint16
	Topic           string
	MessageEncoding string
	Metadata        map[string]string
}

func (*Channel) OpCode() OpCode { return OpChannel }

func (c *Channel) appendBody(b *recordBuilder) {
	b.checkID("id", c.ID)
	b.write2(c.ID)
	b.write2(c.SchemaID)
	b.writePrefixedString("topic", c.Topic)
	b.writePrefixedString("message_encoding", c.MessageEncoding)
	b.writeStringMap("metadata", c.Metadata)
}

// Message is a single timestamped payload on a channel.
type Message struct {
	ChannelID   uint16
	Sequence    uint32
	LogTime     uint64
	PublishTime uint64
	Data        []byte
}

func (*Message) OpCode() OpCode { return OpMessage }

func (m *Message) appendBody(b *recordBuilder) {
	b.checkID("channel_id", m.ChannelID)
	b.write2(m.ChannelID)
	b.write4(m.Sequence)
	b.write8(m.LogTime)
	b.write8(m.PublishTime)
	b.write(m.Data)
}

// Chunk holds a batch of Schema, Channel and Message records.
type Chunk struct {
	MessageStartTime uint64
	MessageEndTime   uint64
	UncompressedSize uint64
	UncompressedCRC  uint32
	Compression      string
	Records          []byte
}

func (*Chunk) OpCode() OpCode { return OpChunk }

func (c *Chunk) appendBody(b *recordBuilder) {
	b.write8(c.MessageStartTime)
	b.write8(c.MessageEndTime)
	b.write8(c.UncompressedSize)
	b.write4(c.UncompressedCRC)
	b.writePrefixedString("compression", c.Compression)
	b.writeLongBytes(c.Records)
}

// MessageIndexEntry locates one message inside the uncompressed records of
// a chunk.
type MessageIndexEntry struct {
	Timestamp uint64
	Offset    uint64
}

// MessageIndex lists the messages of one channel inside one chunk, in write
// order.
type MessageIndex struct {
	ChannelID uint16
	Records   []MessageIndexEntry
}

func (*MessageIndex) OpCode() OpCode { return OpMessageIndex }

func (idx *MessageIndex) appendBody(b *recordBuilder) {
	b.write2(idx.ChannelID)
	size := uint64(len(idx.Records)) * 16
	if !b.checkLen("records", size) {
		return
	}
	b.write4(uint32(size))
	for _, e := range idx.Records {
		b.write8(e.Timestamp)
		b.write8(e.Offset)
	}
}

// ChunkIndex locates a chunk and its message indexes.
type ChunkIndex struct {
	MessageStartTime    uint64
	MessageEndTime      uint64
	ChunkStartOffset    uint64
	ChunkLength         uint64
	MessageIndexOffsets map[uint16]uint64
	MessageIndexLength  uint64
	Compression         string
	CompressedSize      uint64
	UncompressedSize    uint64
}

func (*ChunkIndex) OpCode() OpCode { return OpChunkIndex }

func (ci *ChunkIndex) appendBody(b *recordBuilder) {
	b.write8(ci.MessageStartTime)
	b.write8(ci.MessageEndTime)
	b.write8(ci.ChunkStartOffset)
	b.write8(ci.ChunkLength)
	b.writeUint64Map("message_index_offsets", ci.MessageIndexOffsets)
	b.write8(ci.MessageIndexLength)
	b.writePrefixedString("compression", ci.Compression)
	b.write8(ci.CompressedSize)
	b.write8(ci.UncompressedSize)
}

// Attachment carries an auxiliary artifact. The record ends with a CRC32 of
// everything before it in the body.
type Attachment struct {
	LogTime    uint64
	CreateTime uint64
	Name       string
	MediaType  string
	Data       []byte
}

func (*Attachment) OpCode() OpCode { return OpAttachment }

func (a *Attachment) appendBody(b *recordBuilder) {
	b.write8(a.LogTime)
	b.write8(a.CreateTime)
	b.writePrefixedString("name", a.Name)
	b.writePrefixedString("media_type", a.MediaType)
	b.writeLongBytes(a.Data)
	if b.err == nil {
		b.write4(crc32.ChecksumIEEE(b.body()))
	}
}

// AttachmentIndex locates an Attachment record.
type AttachmentIndex struct {
	Offset     uint64
	Length     uint64
	LogTime    uint64
	CreateTime uint64
	DataSize   uint64
	Name       string
	MediaType  string
}

func (*AttachmentIndex) OpCode() OpCode { return OpAttachmentIndex }

func (ai *AttachmentIndex) appendBody(b *recordBuilder) {
	b.write8(ai.Offset)
	b.write8(ai.Length)
	b.write8(ai.LogTime)
	b.write8(ai.CreateTime)
	b.write8(ai.DataSize)
	b.writePrefixedString("name", ai.Name)
	b.writePrefixedString("media_type", ai.MediaType)
}

// Statistics summarizes the whole file.
type Statistics struct {
	MessageCount         uint64
	SchemaCount          uint16
	ChannelCount         uint32
	AttachmentCount      uint32
	MetadataCount        uint32
	ChunkCount           uint32
	MessageStartTime     uint64
	MessageEndTime       uint64
	ChannelMessageCounts map[uint16]uint64
}

func (*Statistics) OpCode() OpCode { return OpStatistics }

func (s *Statistics) appendBody(b *recordBuilder) {
	b.write8(s.MessageCount)
	b.write2(s.SchemaCount)
	b.write4(s.ChannelCount)
	b.write4(s.AttachmentCount)
	b.write4(s.MetadataCount)
	b.write4(s.ChunkCount)
	b.write8(s.MessageStartTime)
	b.write8(s.MessageEndTime)
	b.writeUint64Map("channel_message_counts", s.ChannelMessageCounts)
}

// Metadata is a named set of key/value pairs.
type Metadata struct {
	Name     string
	Metadata map[string]string
}

func (*Metadata) OpCode() OpCode { return OpMetadata }

func (m *Metadata) appendBody(b *recordBuilder) {
	b.writePrefixedString("name", m.Name)
	b.writeStringMap("metadata", m.Metadata)
}

// MetadataIndex locates a Metadata record.
type MetadataIndex struct {
	Offset uint64
	Length uint64
	Name   string
}

func (*MetadataIndex) OpCode() OpCode { return OpMetadataIndex }

func (mi *MetadataIndex) appendBody(b *recordBuilder) {
	b.write8(mi.Offset)
	b.write8(mi.Length)
	b.writePrefixedString("name", mi.Name)
}

// SummaryOffset locates the group of summary records sharing GroupOpcode.
type SummaryOffset struct {
	GroupOpcode OpCode
	GroupStart  uint64
	GroupLength uint64
}

func (*SummaryOffset) OpCode() OpCode { return OpSummaryOffset }

func (so *SummaryOffset) appendBody(b *recordBuilder) {
	b.write1(byte(so.GroupOpcode))
	b.write8(so.GroupStart)
	b.write8(so.GroupLength)
}

// DataEnd closes the data section.
type DataEnd struct {
	DataSectionCRC uint32
}

func (*DataEnd) OpCode() OpCode { return OpDataEnd }

func (d *DataEnd) appendBody(b *recordBuilder) {
	b.write4(d.DataSectionCRC)
}
