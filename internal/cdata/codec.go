package cdata

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
)

const (
	magic         = "CDAT"
	formatVersion = 1
	headerLen     = 18

	// maxBodyLen bounds the decoded size announced by a header.
	maxBodyLen = 1 << 30
)

// ErrCorrupt is returned when a payload file cannot be decoded.
var ErrCorrupt = errors.New("corrupt calibration data")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOptions := cbor.CoreDetEncOptions()
	// TIDs serialize as their text form so files stay readable with cbor tools.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	if encMode, err = encOptions.EncMode(); err != nil {
		panic("cdata: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("cdata: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode serializes r into the payload file format.
//
// LZ4 falls back to no compression when the body does not compress.
func Encode(r *Record, c Compression) ([]byte, error) {
	body, err := encMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	if len(body) > maxBodyLen {
		return nil, fmt.Errorf("record too large: %d bytes", len(body))
	}
	compressed, err := c.compress(body)
	if errors.Is(err, errIncompressible) {
		c = CompressionNone
		compressed, err = body, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compress record with %s: %w", c, err)
	}
	out := make([]byte, headerLen, headerLen+len(compressed))
	copy(out, magic)
	out[4] = formatVersion
	out[5] = byte(c)
	binary.BigEndian.PutUint64(out[6:], xxhash.Sum64(body))
	binary.BigEndian.PutUint32(out[14:], uint32(len(body))) //nolint:gosec // G115: bounded by maxBodyLen.
	return append(out, compressed...), nil
}

// Decode parses data produced by Encode.
func Decode(data []byte) (Record, error) {
	if len(data) < headerLen || string(data[:4]) != magic {
		return Record{}, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	if data[4] != formatVersion {
		return Record{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, data[4])
	}
	c := Compression(data[5])
	sum := binary.BigEndian.Uint64(data[6:])
	size := binary.BigEndian.Uint32(data[14:])
	if size > maxBodyLen {
		return Record{}, fmt.Errorf("%w: body length %d", ErrCorrupt, size)
	}
	body, err := c.decompress(data[headerLen:], int(size))
	if err != nil {
		return Record{}, fmt.Errorf("%w: %s: %w", ErrCorrupt, c, err)
	}
	if len(body) != int(size) {
		return Record{}, fmt.Errorf("%w: body length %d, want %d", ErrCorrupt, len(body), size)
	}
	if xxhash.Sum64(body) != sum {
		return Record{}, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	var r Record
	if err := decMode.Unmarshal(body, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return r, nil
}
