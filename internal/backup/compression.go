package backup

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType names a container compression algorithm
type CompressionType string

const (
	CompressionTypeGzip CompressionType = "GZIP"
	CompressionTypeZstd CompressionType = "ZSTD"
	CompressionTypeLZ4  CompressionType = "LZ4"
)

// CompressionStats contains statistics about a compression run
type CompressionStats struct {
	OriginalSize     int64           `json:"original_size"`
	CompressedSize   int64           `json:"compressed_size"`
	CompressionRatio float64         `json:"compression_ratio"`
	Algorithm        CompressionType `json:"algorithm"`
	Level            int             `json:"level"`
	Duration         time.Duration   `json:"duration"`
}

// Compressor compresses whole payloads and opens streaming readers over them
type Compressor interface {
	Compress(data []byte, level int) ([]byte, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
	Algorithm() CompressionType
	Extension() string
	DefaultLevel() int
	LevelRange() (min, max int)
}

// CompressionManager dispatches to the registered compressors
type CompressionManager struct {
	compressors map[CompressionType]Compressor
}

// NewCompressionManager creates a manager with gzip, zstd and lz4 registered
func NewCompressionManager() *CompressionManager {
	cm := &CompressionManager{compressors: make(map[CompressionType]Compressor)}
	for _, c := range []Compressor{&GzipCompressor{}, &ZstdCompressor{}, &LZ4Compressor{}} {
		cm.compressors[c.Algorithm()] = c
	}
	return cm
}

// Get returns the compressor for algorithm
func (cm *CompressionManager) Get(algorithm CompressionType) (Compressor, error) {
	c, ok := cm.compressors[algorithm]
	if !ok {
		return nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}
	return c, nil
}

// ByExtension returns the compressor whose container extension is ext
func (cm *CompressionManager) ByExtension(ext string) (Compressor, bool) {
	for _, c := range cm.compressors {
		if c.Extension() == ext {
			return c, true
		}
	}
	return nil, false
}

// Compress compresses data, clamping out-of-range levels to the algorithm default
func (cm *CompressionManager) Compress(data []byte, algorithm CompressionType, level int) ([]byte, *CompressionStats, error) {
	c, err := cm.Get(algorithm)
	if err != nil {
		return nil, nil, err
	}

	if lo, hi := c.LevelRange(); level < lo || level > hi {
		level = c.DefaultLevel()
	}

	start := time.Now()
	compressed, err := c.Compress(data, level)
	if err != nil {
		return nil, nil, err
	}

	return compressed, &CompressionStats{
		OriginalSize:     int64(len(data)),
		CompressedSize:   int64(len(compressed)),
		CompressionRatio: CalculateCompressionRatio(int64(len(data)), int64(len(compressed))),
		Algorithm:        algorithm,
		Level:            level,
		Duration:         time.Since(start),
	}, nil
}

// Decompress fully decompresses data
func (cm *CompressionManager) Decompress(data []byte, algorithm CompressionType) ([]byte, error) {
	c, err := cm.Get(algorithm)
	if err != nil {
		return nil, err
	}

	reader, err := c.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewCompressionError(fmt.Sprintf("failed to decompress %s data", algorithm), err)
	}
	return out, nil
}

// CalculateCompressionRatio returns compressed/original, or 1 for empty input
func CalculateCompressionRatio(originalSize, compressedSize int64) float64 {
	if originalSize == 0 {
		return 1.0
	}
	return float64(compressedSize) / float64(originalSize)
}

// GzipCompressor implements gzip compression
type GzipCompressor struct{}

func (gc *GzipCompressor) Compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, NewCompressionError("failed to create gzip writer", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, NewCompressionError("failed to write data to gzip writer", err)
	}
	if err := writer.Close(); err != nil {
		return nil, NewCompressionError("failed to close gzip writer", err)
	}
	return buf.Bytes(), nil
}

func (gc *GzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	reader, err := gzip.NewReader(r)
	if err != nil {
		return nil, NewInvalidEncodingError("payload is not gzip data", err)
	}
	return reader, nil
}

func (gc *GzipCompressor) Algorithm() CompressionType { return CompressionTypeGzip }
func (gc *GzipCompressor) Extension() string          { return ".gz" }
func (gc *GzipCompressor) DefaultLevel() int          { return gzip.DefaultCompression }

func (gc *GzipCompressor) LevelRange() (int, int) {
	return gzip.DefaultCompression, gzip.BestCompression
}

// ZstdCompressor implements Zstandard compression
type ZstdCompressor struct{}

func (zc *ZstdCompressor) Compress(data []byte, level int) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, NewCompressionError("failed to create zstd encoder", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (zc *ZstdCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, NewInvalidEncodingError("payload is not zstd data", err)
	}
	return decoder.IOReadCloser(), nil
}

func (zc *ZstdCompressor) Algorithm() CompressionType { return CompressionTypeZstd }
func (zc *ZstdCompressor) Extension() string          { return ".zst" }
func (zc *ZstdCompressor) DefaultLevel() int          { return 3 }
func (zc *ZstdCompressor) LevelRange() (int, int)     { return 1, 22 }

// LZ4Compressor implements LZ4 frame compression
type LZ4Compressor struct{}

func (lc *LZ4Compressor) Compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)

	// lz4 only distinguishes fast mode from high-compression levels.
	if level > 6 {
		if err := writer.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, NewCompressionError("failed to set LZ4 compression level", err)
		}
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, NewCompressionError("failed to write data to LZ4 writer", err)
	}
	if err := writer.Close(); err != nil {
		return nil, NewCompressionError("failed to close LZ4 writer", err)
	}
	return buf.Bytes(), nil
}

func (lc *LZ4Compressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (lc *LZ4Compressor) Algorithm() CompressionType { return CompressionTypeLZ4 }
func (lc *LZ4Compressor) Extension() string          { return ".lz4" }
func (lc *LZ4Compressor) DefaultLevel() int          { return 1 }
func (lc *LZ4Compressor) LevelRange() (int, int)     { return 1, 12 }
