package mcap

import (
	"math"
	"sort"
)

// indexer accumulates the message indexes of the open chunk, the chunk,
// attachment and metadata indexes of sealed records, and the running file
// statistics.
type indexer struct {
	open     map[uint16][]MessageIndexEntry
	channels []uint16 // channels with entries in the open chunk, ascending

	stats             Statistics
	chunkIndexes      []*ChunkIndex
	attachmentIndexes []*AttachmentIndex
	metadataIndexes   []*MetadataIndex
}

func newIndexer() *indexer {
	return &indexer{
		open: make(map[uint16][]MessageIndexEntry),
		stats: Statistics{
			ChannelMessageCounts: make(map[uint16]uint64),
			MessageStartTime:     math.MaxUint64,
		},
	}
}

func (x *indexer) schemaRegistered()  { x.stats.SchemaCount++ }
func (x *indexer) channelRegistered() { x.stats.ChannelCount++ }

// recordMessage notes a message at offset within the open chunk.
func (x *indexer) recordMessage(channelID uint16, logTime, offset uint64) {
	entries, ok := x.open[channelID]
	if !ok {
		i := sort.Search(len(x.channels), func(i int) bool { return x.channels[i] >= channelID })
		x.channels = append(x.channels, 0)
		copy(x.channels[i+1:], x.channels[i:])
		x.channels[i] = channelID
	}
	x.open[channelID] = append(entries, MessageIndexEntry{Timestamp: logTime, Offset: offset})

	x.stats.MessageCount++
	x.stats.ChannelMessageCounts[channelID]++
	if logTime < x.stats.MessageStartTime {
		x.stats.MessageStartTime = logTime
	}
	if logTime > x.stats.MessageEndTime {
		x.stats.MessageEndTime = logTime
	}
}

// messageIndexes returns one record per channel with messages in the open
// chunk, ordered by channel id. Entries keep write order.
func (x *indexer) messageIndexes() []*MessageIndex {
	out := make([]*MessageIndex, 0, len(x.channels))
	for _, id := range x.channels {
		out = append(out, &MessageIndex{ChannelID: id, Records: x.open[id]})
	}
	return out
}

// chunkSealed records the index of a chunk that has reached the sink and
// clears the open message indexes.
func (x *indexer) chunkSealed(ci *ChunkIndex) {
	x.chunkIndexes = append(x.chunkIndexes, ci)
	x.stats.ChunkCount++
	x.open = make(map[uint16][]MessageIndexEntry, len(x.channels))
	x.channels = x.channels[:0]
}

func (x *indexer) attachmentWritten(ai *AttachmentIndex) {
	x.attachmentIndexes = append(x.attachmentIndexes, ai)
	x.stats.AttachmentCount++
}

func (x *indexer) metadataWritten(mi *MetadataIndex) {
	x.metadataIndexes = append(x.metadataIndexes, mi)
	x.stats.MetadataCount++
}

// statistics returns a copy of the running statistics. Time bounds are 0
// while no message has been written.
func (x *indexer) statistics() Statistics {
	s := x.stats
	if s.MessageCount == 0 {
		s.MessageStartTime = 0
	}
	s.ChannelMessageCounts = make(map[uint16]uint64, len(x.stats.ChannelMessageCounts))
	for k, v := range x.stats.ChannelMessageCounts {
		s.ChannelMessageCounts[k] = v
	}
	return s
}
