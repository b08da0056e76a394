// Package compression provides transparent zstd object compression for
// storage backends.
package compression

import (
	"github.com/klauspost/compress/zstd"
)

// minCompressSize skips compression for values too small to benefit.
const minCompressSize = 128

// Compressor compresses and decompresses storage values. Values that
// do not shrink are stored raw; Decompress detects the zstd frame
// header, so raw and compressed values can coexist.
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

// Disabled returns a pass-through compressor.
func Disabled() *Compressor {
	return &Compressor{enabled: false}
}

// New creates a compressor with the given level (1 fastest, 2 default,
// 3 better compression).
func New(level int) (*Compressor, error) {
	var encoderLevel zstd.EncoderLevel
	switch level {
	case 1:
		encoderLevel = zstd.SpeedFastest
	case 3:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedDefault
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	return &Compressor{
		encoder: encoder,
		decoder: decoder,
		enabled: true,
	}, nil
}

func (c *Compressor) Compress(data []byte) ([]byte, error) {
	if !c.enabled || len(data) < minCompressSize {
		return data, nil
	}

	compressed := c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	if len(compressed) >= len(data) {
		return data, nil
	}
	return compressed, nil
}

func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if !c.enabled || !hasZstdFrame(data) {
		return data, nil
	}
	return c.decoder.DecodeAll(data, nil)
}

func (c *Compressor) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}

// zstd frame magic, little-endian 0xFD2FB528.
func hasZstdFrame(data []byte) bool {
	return len(data) >= 4 &&
		data[0] == 0x28 && data[1] == 0xb5 && data[2] == 0x2f && data[3] == 0xfd
}
