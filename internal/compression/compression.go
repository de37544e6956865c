// Package compression opens backup data files that may be gzip (parallel
// pgzip) or zstd compressed, picking the codec from the file extension and
// falling back to magic bytes.
package compression

import (
	"bufio"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// Algorithm represents a compression algorithm
type Algorithm string

const (
	AlgorithmNone Algorithm = "none"
	AlgorithmGzip Algorithm = "gzip"
	AlgorithmZstd Algorithm = "zstd"
)

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xB5, 0x2F, 0xFD}
)

// DetectAlgorithm determines the compression algorithm from a file path
func DetectAlgorithm(filePath string) Algorithm {
	lower := strings.ToLower(filePath)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return AlgorithmGzip
	case strings.HasSuffix(lower, ".zst") || strings.HasSuffix(lower, ".zstd"):
		return AlgorithmZstd
	default:
		return AlgorithmNone
	}
}

// detectFromReader peeks at the stream's magic bytes. The returned reader
// replays the peeked bytes.
func detectFromReader(r io.Reader) (Algorithm, io.Reader) {
	br := bufio.NewReaderSize(r, 64*1024)
	peeked, err := br.Peek(4)
	if len(peeked) >= 2 && peeked[0] == magicGzip[0] && peeked[1] == magicGzip[1] {
		return AlgorithmGzip, br
	}
	if err == nil && peeked[0] == magicZstd[0] && peeked[1] == magicZstd[1] &&
		peeked[2] == magicZstd[2] && peeked[3] == magicZstd[3] {
		return AlgorithmZstd, br
	}
	return AlgorithmNone, br
}

// StripExtension removes the compression extension from a file path
func StripExtension(filePath string) string {
	lower := strings.ToLower(filePath)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return filePath[:len(filePath)-3]
	case strings.HasSuffix(lower, ".zstd"):
		return filePath[:len(filePath)-5]
	case strings.HasSuffix(lower, ".zst"):
		return filePath[:len(filePath)-4]
	default:
		return filePath
	}
}

// Decompressor wraps a decompression reader with a unified Close
type Decompressor struct {
	Reader    io.Reader
	closer    io.Closer
	algorithm Algorithm
}

// Read implements io.Reader
func (d *Decompressor) Read(p []byte) (int, error) {
	return d.Reader.Read(p)
}

// Close releases the decoder; it does not close the underlying reader
func (d *Decompressor) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

// Algorithm returns the codec in use
func (d *Decompressor) Algorithm() Algorithm {
	return d.algorithm
}

// NewDecompressor returns a reader for filePath's content. Files without a
// compression extension are sniffed, so a gzip stream saved as .ndjson
// still decodes.
func NewDecompressor(reader io.Reader, filePath string) (*Decompressor, error) {
	algo := DetectAlgorithm(filePath)
	if algo == AlgorithmNone {
		algo, reader = detectFromReader(reader)
	}

	switch algo {
	case AlgorithmGzip:
		workers := runtime.NumCPU()
		if workers > 8 {
			workers = 8
		}
		gz, err := pgzip.NewReaderN(reader, 1<<20, workers)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return &Decompressor{Reader: gz, closer: gz, algorithm: AlgorithmGzip}, nil
	case AlgorithmZstd:
		decoder, err := zstd.NewReader(reader, zstd.WithDecoderConcurrency(0))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return &Decompressor{Reader: decoder, closer: decoder.IOReadCloser(), algorithm: AlgorithmZstd}, nil
	}
	return &Decompressor{Reader: reader, algorithm: AlgorithmNone}, nil
}

// Compressor wraps a compression writer
type Compressor struct {
	Writer io.Writer
	closer io.Closer
}

// Write implements io.Writer
func (c *Compressor) Write(p []byte) (int, error) {
	return c.Writer.Write(p)
}

// Close flushes and closes the compression writer
func (c *Compressor) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// NewCompressor creates a writer that compresses according to filePath's extension
func NewCompressor(writer io.Writer, filePath string) (*Compressor, error) {
	switch DetectAlgorithm(filePath) {
	case AlgorithmGzip:
		gz, err := pgzip.NewWriterLevel(writer, pgzip.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return &Compressor{Writer: gz, closer: gz}, nil
	case AlgorithmZstd:
		enc, err := zstd.NewWriter(writer, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return &Compressor{Writer: enc, closer: enc}, nil
	}
	return &Compressor{Writer: writer}, nil
}
