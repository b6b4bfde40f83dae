package packagecache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/zjrosen/pkgdb/internal/packagedb"
)

// The file wraps the packagedb stream in an envelope:
//
//	magic "PKGDB" | flags (1 byte) | payload | BLAKE3-256(payload)
//
// Flag bit 0 marks a zstd-compressed payload. The checksum covers the
// payload as stored.
const (
	fileMagic    = "PKGDB"
	flagZstd     = 1 << 0
	knownFlags   = flagZstd
	checksumSize = 32
	maxDecoded   = 1 << 30
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecoded))
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// checksum identifies file content; two files with the same checksum hold
// the same database.
type checksum [checksumSize]byte

// encodeFile serializes db into the file envelope.
func encodeFile(db *packagedb.DB, compress bool) ([]byte, checksum, error) {
	var raw bytes.Buffer
	if err := packagedb.Write(&raw, db); err != nil {
		return nil, checksum{}, err
	}

	payload := raw.Bytes()
	var flags byte
	if compress {
		enc, _, err := zstdCodecs()
		if err != nil {
			return nil, checksum{}, fmt.Errorf("zstd: %w", err)
		}
		payload = enc.EncodeAll(payload, nil)
		flags |= flagZstd
	}

	sum := blake3.Sum256(payload)
	out := make([]byte, 0, len(fileMagic)+1+len(payload)+checksumSize)
	out = append(out, fileMagic...)
	out = append(out, flags)
	out = append(out, payload...)
	out = append(out, sum[:]...)
	return out, sum, nil
}

// decodeFile checks the envelope and deserializes its payload.
func decodeFile(data []byte) (*packagedb.DB, checksum, error) {
	var sum checksum
	if len(data) < len(fileMagic)+1+checksumSize || string(data[:len(fileMagic)]) != fileMagic {
		return nil, sum, fmt.Errorf("%w: not a package database file", packagedb.ErrCorruptStream)
	}
	flags := data[len(fileMagic)]
	if flags&^knownFlags != 0 {
		return nil, sum, fmt.Errorf("%w: unknown file flags %#x", packagedb.ErrUnsupportedFormat, flags)
	}

	body := data[len(fileMagic)+1:]
	payload := body[:len(body)-checksumSize]
	copy(sum[:], body[len(body)-checksumSize:])
	if blake3.Sum256(payload) != sum {
		return nil, sum, fmt.Errorf("%w: checksum mismatch", packagedb.ErrCorruptStream)
	}

	if flags&flagZstd != 0 {
		_, dec, err := zstdCodecs()
		if err != nil {
			return nil, sum, fmt.Errorf("zstd: %w", err)
		}
		if payload, err = dec.DecodeAll(payload, nil); err != nil {
			return nil, sum, fmt.Errorf("%w: %w", packagedb.ErrCorruptStream, err)
		}
	}
	db, err := packagedb.Read(bytes.NewReader(payload))
	return db, sum, err
}

// readFile loads the database at path. A missing file is reported with
// an error satisfying errors.Is(err, os.ErrNotExist).
func readFile(path string) (*packagedb.DB, checksum, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the configured cache file
	if err != nil {
		return nil, checksum{}, err
	}
	return decodeFile(data)
}

// writeFile overwrites path in place.
func writeFile(path string, db *packagedb.DB, compress bool) (checksum, error) {
	data, sum, err := encodeFile(db, compress)
	if err != nil {
		return checksum{}, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return checksum{}, fmt.Errorf("write %s: %w", path, err)
	}
	return sum, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
