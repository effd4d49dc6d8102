package mcap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexer_MessageIndexesKeepWriteOrder(t *testing.T) {
	x := newIndexer()
	x.recordMessage(2, 30, 0)
	x.recordMessage(1, 10, 50)
	x.recordMessage(2, 5, 100)

	idxs := x.messageIndexes()
	require.Len(t, idxs, 2)
	assert.Equal(t, uint16(1), idxs[0].ChannelID)
	assert.Equal(t, []MessageIndexEntry{{Timestamp: 10, Offset: 50}}, idxs[0].Records)
	assert.Equal(t, uint16(2), idxs[1].ChannelID)
	assert.Equal(t, []MessageIndexEntry{{Timestamp: 30, Offset: 0}, {Timestamp: 5, Offset: 100}}, idxs[1].Records)
}

func TestIndexer_ChunkSealedClearsOpenIndexes(t *testing.T) {
	x := newIndexer()
	x.recordMessage(1, 10, 0)
	idxs := x.messageIndexes()
	x.chunkSealed(&ChunkIndex{ChunkStartOffset: 8})

	assert.Empty(t, x.messageIndexes())
	// records handed out before the seal stay intact
	assert.Equal(t, []MessageIndexEntry{{Timestamp: 10, Offset: 0}}, idxs[0].Records)

	x.recordMessage(3, 11, 0)
	require.Len(t, x.messageIndexes(), 1)
	assert.Equal(t, uint16(3), x.messageIndexes()[0].ChannelID)
	assert.Len(t, x.chunkIndexes, 1)
	assert.Equal(t, uint32(1), x.stats.ChunkCount)
}

func TestIndexer_Statistics(t *testing.T) {
	x := newIndexer()
	s := x.statistics()
	assert.Equal(t, uint64(0), s.MessageStartTime)
	assert.Equal(t, uint64(0), s.MessageEndTime)

	x.schemaRegistered()
	x.channelRegistered()
	x.channelRegistered()
	x.recordMessage(1, 10, 0)
	x.recordMessage(2, 5, 0)
	x.recordMessage(1, 20, 0)
	x.metadataWritten(&MetadataIndex{Name: "m"})
	x.attachmentWritten(&AttachmentIndex{Name: "a"})

	s = x.statistics()
	assert.Equal(t, uint64(3), s.MessageCount)
	assert.Equal(t, uint16(1), s.SchemaCount)
	assert.Equal(t, uint32(2), s.ChannelCount)
	assert.Equal(t, uint32(1), s.MetadataCount)
	assert.Equal(t, uint32(1), s.AttachmentCount)
	assert.Equal(t, uint64(5), s.MessageStartTime)
	assert.Equal(t, uint64(20), s.MessageEndTime)
	assert.Equal(t, map[uint16]uint64{1: 2, 2: 1}, s.ChannelMessageCounts)

	// snapshot is detached from the accumulator
	s.ChannelMessageCounts[1] = 99
	assert.Equal(t, uint64(2), x.statistics().ChannelMessageCounts[1])
}
