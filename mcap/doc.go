// Package mcap provides a streaming writer for MCAP (.mcap) files.
//
// An MCAP file is laid out as:
//   - magic, then a Header record
//   - the data section: Chunk records holding Schema, Channel and Message
//     records, each chunk followed by one Message Index record per channel
//     that appears in it, plus top-level Metadata and Attachment records
//   - a DataEnd record carrying the CRC of the data section
//   - the summary section: Schema, Channel, ChunkIndex, AttachmentIndex,
//     MetadataIndex and Statistics records, then one Summary Offset record
//     per group
//   - a Footer record and the closing magic
//
// Every record is [opcode:1][length:8 LE][body]. The writer never seeks:
// offsets are tracked as bytes leave the writer and the summary is emitted
// once, on Close. Messages are buffered only until the active chunk is
// sealed.
//
// A Writer is not safe for concurrent use. The recorder subpackage wraps one
// with a mutex for callers that feed it from several goroutines.
package mcap
