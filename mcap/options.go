package mcap

import "go.uber.org/zap"

const (
	// DefaultChunkSize is the uncompressed size at which the active chunk is
	// sealed unless WithChunkSize says otherwise.
	DefaultChunkSize = 1024 * 1024

	// DefaultLibrary is written to the Header when WithLibrary is not used.
	DefaultLibrary = "mcap-go"
)

// Option configures a Writer.
type Option func(c *config)

// WithChunkSize sets the target uncompressed size of a chunk. A chunk is
// sealed once a message brings it to or past this size; a single larger
// message is never split.
func WithChunkSize(size int64) Option {
	return func(c *config) {
		c.chunkSize = size
	}
}

// WithProfile sets the profile written to the Header, e.g. "ros2".
func WithProfile(profile string) Option {
	return func(c *config) {
		c.profile = profile
	}
}

// WithLibrary sets the library string written to the Header.
func WithLibrary(library string) Option {
	return func(c *config) {
		c.library = library
	}
}

// WithCompression sets the chunk compression. The default writes
// uncompressed chunks.
func WithCompression(compression Compression) Option {
	return func(c *config) {
		c.compression = compression
	}
}

// WithLogger sets the logger used for chunk and close diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) {
		c.logger = log
	}
}

// WithoutSummaryOffsets omits the Summary Offset section. The Footer then
// carries a summary_offset_start of 0.
func WithoutSummaryOffsets() Option {
	return func(c *config) {
		c.skipSummaryOffsets = true
	}
}

type config struct {
	chunkSize          int64
	profile            string
	library            string
	compression        Compression
	logger             *zap.Logger
	skipSummaryOffsets bool
}

func newConfig(opts []Option) config {
	c := config{
		chunkSize: DefaultChunkSize,
		library:   DefaultLibrary,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}
