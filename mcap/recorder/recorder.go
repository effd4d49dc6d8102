// Package recorder provides a thread-safe helper that feeds timestamped
// payloads into an MCAP writer. It is transport-agnostic: register a channel
// per stream and call RecordNow/RecordAt for each payload received.
package recorder

import (
	"strconv"
	"sync"
	"time"

	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/reallyoldfogie/mcap-go/mcap"
)

// MetadataName names the Metadata record describing the recording session.
const MetadataName = "recording"

// Recorder streams payloads to an underlying mcap.Writer, stamping them with
// nanoseconds since the recorder started and assigning per-channel sequence
// numbers.
type Recorder struct {
	w        *mcap.Writer
	start    time.Time
	session  uuid.UUID
	mu       sync.Mutex
	closed   bool
	sequence map[uint16]uint32
}

// New creates a Recorder on w, opening it if it has not been opened yet.
// The recorder start time is set to now.
func New(w *mcap.Writer) (*Recorder, error) {
	if w.State() == mcap.StateCreated {
		if err := w.Open(); err != nil {
			return nil, err
		}
	}
	return &Recorder{
		w:        w,
		start:    time.Now(),
		session:  uuid.New(),
		sequence: make(map[uint16]uint32),
	}, nil
}

// NewFile creates and owns an MCAP file at path. Use Close when finished.
func NewFile(path string, opts ...mcap.Option) (*Recorder, error) {
	w, err := mcap.Create(path, opts...)
	if err != nil {
		return nil, err
	}
	r, err := New(w)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	return r, nil
}

// Session returns the id stored in the recording metadata.
func (r *Recorder) Session() uuid.UUID {
	return r.session
}

// RegisterSchema registers a schema on the underlying writer.
func (r *Recorder) RegisterSchema(name, encoding string, data []byte) (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, errors.New("recorder: closed")
	}
	return r.w.RegisterSchema(name, encoding, data)
}

// RegisterChannel registers a channel on the underlying writer.
func (r *Recorder) RegisterChannel(schemaID uint16, topic, messageEncoding string, metadata map[string]string) (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, errors.New("recorder: closed")
	}
	return r.w.RegisterChannel(schemaID, topic, messageEncoding, metadata)
}

// RecordNow records data on channelID with the current time relative to
// start.
func (r *Recorder) RecordNow(channelID uint16, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.record(channelID, uint64(time.Since(r.start).Nanoseconds()), data)
}

// RecordAt records data on channelID with an explicit nanosecond timestamp.
func (r *Recorder) RecordAt(ts uint64, channelID uint16, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.record(channelID, ts, data)
}

// RecordPacket records a protocol packet framed as [varint id][payload],
// the layout used by Minecraft replay streams.
func (r *Recorder) RecordPacket(channelID uint16, packetID int32, payload []byte) error {
	return r.RecordNow(channelID, packetFrame(packetID, payload))
}

func packetFrame(packetID int32, payload []byte) []byte {
	id := pk.VarInt(packetID)
	data := make([]byte, id.Len(), id.Len()+len(payload))
	id.WriteToBytes(data)
	return append(data, payload...)
}

func (r *Recorder) record(channelID uint16, ts uint64, data []byte) error {
	seq := r.sequence[channelID]
	err := r.w.WriteMessage(&mcap.Message{
		ChannelID:   channelID,
		Sequence:    seq,
		LogTime:     ts,
		PublishTime: ts,
		Data:        data,
	})
	if err != nil {
		return err
	}
	r.sequence[channelID] = seq + 1
	return nil
}

// AddMetadata writes a Metadata record. No-op after Close.
func (r *Recorder) AddMetadata(name string, metadata map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.w.WriteMetadata(name, metadata)
}

// Close writes the session metadata and finalizes the MCAP file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.w.WriteMetadata(MetadataName, map[string]string{
		"session":     r.session.String(),
		"start":       r.start.UTC().Format(time.RFC3339Nano),
		"duration_ns": strconv.FormatInt(time.Since(r.start).Nanoseconds(), 10),
	})
	if err != nil {
		_ = r.w.Close()
		return errors.Wrap(err, "recorder: write session metadata")
	}
	return r.w.Close()
}
