package cache

import (
	"encoding/binary"
	"time"

	cachekey "github.com/always-cache/spa-shell/pkg/cache-key"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"go.trai.ch/zerr"
)

// Stored blob layout:
//
//	xxhash64(payload) [8] | zstd(payload)
//
// where payload is
//
//	stored-at unix nanos [8] | response snapshot
const (
	checksumSize = 8
	storedAtSize = 8
)

// EncodeAll and DecodeAll are safe for concurrent use.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	decoder, _ = zstd.NewReader(nil)
)

func encodeEntry(e Entry) []byte {
	payload := make([]byte, storedAtSize, storedAtSize+len(e.Response))
	binary.BigEndian.PutUint64(payload, uint64(e.StoredAt.UnixNano()))
	payload = append(payload, e.Response...)

	blob := make([]byte, checksumSize, checksumSize+len(payload)/2)
	binary.BigEndian.PutUint64(blob, xxhash.Sum64(payload))
	return encoder.EncodeAll(payload, blob)
}

func decodeEntry(key cachekey.Key, blob []byte) (Entry, error) {
	if len(blob) < checksumSize {
		return Entry{}, zerr.With(zerr.Wrap(ErrCorruptEntry, "blob too short"), "key", key.String())
	}
	payload, err := decoder.DecodeAll(blob[checksumSize:], nil)
	if err != nil {
		return Entry{}, zerr.With(zerr.Wrap(ErrCorruptEntry, err.Error()), "key", key.String())
	}
	if xxhash.Sum64(payload) != binary.BigEndian.Uint64(blob) || len(payload) < storedAtSize {
		return Entry{}, zerr.With(zerr.Wrap(ErrCorruptEntry, "checksum mismatch"), "key", key.String())
	}
	return Entry{
		Key:      key,
		StoredAt: time.Unix(0, int64(binary.BigEndian.Uint64(payload))),
		Response: payload[storedAtSize:],
	}, nil
}
