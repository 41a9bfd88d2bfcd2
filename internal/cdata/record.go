// Package cdata defines calibration records and their on-disk encoding.
//
// A payload file holds exactly one [Record]. The file starts with a fixed
// header followed by the CBOR encoded record, optionally compressed:
//
//	offset  size  field
//	0       4     magic "CDAT"
//	4       1     format version
//	5       1     compression (see Compression)
//	6       8     xxhash64 of the uncompressed CBOR body, big endian
//	14      4     length of the uncompressed CBOR body, big endian
//	18      -     body
//
// The payload itself is opaque to this package.
package cdata

import (
	"encoding/hex"
	"time"

	"github.com/maruel/calibdb/internal/tid"
	"golang.org/x/crypto/blake2b"
)

// Record is one calibration data set valid for [FirstID, LastID].
type Record struct {
	CalibrationID string    `cbor:"calibration_id"`
	FirstID       tid.TID   `cbor:"first_id"`
	LastID        tid.TID   `cbor:"last_id"`
	Author        string    `cbor:"author,omitempty"`
	Comment       string    `cbor:"comment,omitempty"`
	Created       time.Time `cbor:"created"`
	Payload       []byte    `cbor:"payload"`
}

// Interval returns [FirstID, LastID].
func (r *Record) Interval() tid.Interval {
	return tid.NewInterval(r.FirstID, r.LastID)
}

// Digest returns the hex encoded BLAKE2b-256 of the payload.
//
// Two records with the same digest carry the same calibration values.
func (r *Record) Digest() string {
	sum := blake2b.Sum256(r.Payload)
	return hex.EncodeToString(sum[:])
}
