package cdata

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how the CBOR body of a payload file is compressed.
type Compression uint8

const (
	// CompressionNone stores the body as is.
	CompressionNone Compression = iota
	// CompressionZstd uses Zstandard. It is the default.
	CompressionZstd
	// CompressionS2 uses S2, a faster Snappy extension.
	CompressionS2
	// CompressionLZ4 uses LZ4 block compression.
	CompressionLZ4
)

var compressionNames = [...]string{
	CompressionNone: "none",
	CompressionZstd: "zstd",
	CompressionS2:   "s2",
	CompressionLZ4:  "lz4",
}

// String implements fmt.Stringer.
func (c Compression) String() string {
	if int(c) < len(compressionNames) {
		return compressionNames[c]
	}
	return fmt.Sprintf("Compression(%d)", uint8(c))
}

// ParseCompression parses the name returned by String.
func ParseCompression(s string) (Compression, error) {
	for i, n := range compressionNames {
		if n == s {
			return Compression(i), nil
		}
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Compression) MarshalText() ([]byte, error) {
	if int(c) >= len(compressionNames) {
		return nil, fmt.Errorf("unknown compression %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Compression) UnmarshalText(b []byte) error {
	v, err := ParseCompression(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// compress returns data compressed with c.
func (c Compression) compress(data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		enc := zstdEncoderPool.Get().(*zstd.Encoder)
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil
	case CompressionS2:
		return s2.Encode(nil, data), nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		lc := lz4CompressorPool.Get().(*lz4.Compressor)
		defer lz4CompressorPool.Put(lc)
		n, err := lc.CompressBlock(data, dst)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// Incompressible input; lz4 leaves it to the caller.
			return nil, errIncompressible
		}
		return dst[:n], nil
	default:
		return nil, fmt.Errorf("unknown compression %d", uint8(c))
	}
}

// decompress returns data decompressed with c. size is the expected output
// length.
func (c Compression) decompress(data []byte, size int) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		dec := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(dec)
		return dec.DecodeAll(data, make([]byte, 0, size))
	case CompressionS2:
		return s2.Decode(make([]byte, size), data)
	case CompressionLZ4:
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(data, dst)
		if err != nil {
			return nil, err
		}
		return dst[:n], nil
	default:
		return nil, fmt.Errorf("unknown compression %d", uint8(c))
	}
}

//

var errIncompressible = errors.New("incompressible data")

var zstdEncoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderCRC(false))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
		}
		return enc
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
		}
		return dec
	},
}

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}
