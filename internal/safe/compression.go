// internal/safe/compression.go
package safe

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressionOptions configures compression behavior
type CompressionOptions struct {
	// Compression level (1=fastest, 4=best)
	Level int
	// Blobs above this size are decoded as a stream instead of in one shot
	StreamingThreshold int64
}

// DefaultCompressionOptions provides sensible defaults
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		Level:              2,                // Balanced speed/compression
		StreamingThreshold: 50 * 1024 * 1024, // 50MB
	}
}

// compressionManager handles compression operations
type compressionManager struct {
	opts CompressionOptions

	// Encoder/decoder pools
	encoders sync.Pool
	decoders sync.Pool

	// Buffer pool for one-shot decompression
	bufs sync.Pool
}

func newCompressionManager(opts CompressionOptions) (*compressionManager, error) {
	// Create encoder/decoder for validation
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating test encoder: %w", err)
	}
	enc.Close()

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating test decoder: %w", err)
	}
	dec.Close()

	cm := &compressionManager{
		opts: opts,
		encoders: sync.Pool{
			New: func() interface{} {
				enc, _ := zstd.NewWriter(nil,
					zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)),
					zstd.WithEncoderConcurrency(1),
				)
				return enc
			},
		},
		decoders: sync.Pool{
			New: func() interface{} {
				dec, _ := zstd.NewReader(nil,
					zstd.WithDecoderConcurrency(1),
				)
				return dec
			},
		},
		bufs: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 32*1024)) // 32KB
			},
		},
	}

	return cm, nil
}

// compressStream copies src into dst through a pooled encoder.
func (cm *compressionManager) compressStream(dst io.Writer, src io.Reader) (int64, error) {
	enc := cm.encoders.Get().(*zstd.Encoder)
	defer cm.encoders.Put(enc)

	enc.Reset(dst)

	n, err := io.Copy(enc, src)
	if err != nil {
		enc.Close()
		return n, fmt.Errorf("streaming compression: %w", err)
	}

	if err := enc.Close(); err != nil {
		return n, fmt.Errorf("finalizing compression: %w", err)
	}

	return n, nil
}

// decompress decodes a whole blob held in memory.
func (cm *compressionManager) decompress(content []byte) ([]byte, error) {
	dec := cm.decoders.Get().(*zstd.Decoder)
	defer cm.decoders.Put(dec)

	if int64(len(content)) > cm.opts.StreamingThreshold {
		buf := cm.bufs.Get().(*bytes.Buffer)
		defer cm.bufs.Put(buf)
		buf.Reset()

		if err := cm.decompressStream(dec, buf, bytes.NewReader(content)); err != nil {
			return nil, err
		}
		return bytes.Clone(buf.Bytes()), nil
	}

	return dec.DecodeAll(content, nil)
}

// decompressTo streams a compressed blob from src into dst.
func (cm *compressionManager) decompressTo(dst io.Writer, src io.Reader) error {
	dec := cm.decoders.Get().(*zstd.Decoder)
	defer cm.decoders.Put(dec)

	return cm.decompressStream(dec, dst, src)
}

func (cm *compressionManager) decompressStream(dec *zstd.Decoder, dst io.Writer, src io.Reader) error {
	if err := dec.Reset(src); err != nil {
		return fmt.Errorf("resetting decoder: %w", err)
	}

	if _, err := io.Copy(dst, dec); err != nil {
		return fmt.Errorf("streaming decompression: %w", err)
	}

	return nil
}
