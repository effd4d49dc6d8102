// Package adapters feeds packets from github.com/Tnze/go-mc (pk.Packet) into
// an MCAP recorder.
package adapters

import (
	"strconv"

	pk "github.com/Tnze/go-mc/net/packet"
	"go.uber.org/zap"

	"github.com/reallyoldfogie/mcap-go/mcap/recorder"
)

// PacketEncoding is the message encoding of channels carrying
// [varint packet id][payload] frames.
const PacketEncoding = "minecraft-packet"

// RegisterPacketChannel registers a schemaless channel for clientbound
// packets on topic.
func RegisterPacketChannel(rec *recorder.Recorder, topic string, protocol int) (uint16, error) {
	return rec.RegisterChannel(0, topic, PacketEncoding, map[string]string{
		"protocol": strconv.Itoa(protocol),
	})
}

// PacketFunc returns a handler compatible with go-mc packet handler
// signatures (func(pk.Packet) error). It records each received packet on
// channelID.
func PacketFunc(rec *recorder.Recorder, channelID uint16, log *zap.Logger) func(pk.Packet) error {
	recordCount := 0
	return func(p pk.Packet) error {
		// upstream may reuse p.Data
		data := make([]byte, len(p.Data))
		copy(data, p.Data)
		recordCount++
		if recordCount%100 == 0 {
			log.Debug("Recorded packets",
				zap.Int("count", recordCount),
				zap.Int32("latest_id", int32(p.ID)),
				zap.Int("latest_len", len(data)))
		}
		return rec.RecordPacket(channelID, int32(p.ID), data)
	}
}
