package openmeteo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// File entries are laid out as
//
//	[8 byte xxhash of the rest][zstd([8 byte fetch time, unix nanos][body])]
//
// and written through a temp file plus rename, so readers see either a whole
// entry or none. Anything that fails the checksum or decompression is a miss.
const (
	checksumSize = 8
	stampSize    = 8
	fileSuffix   = ".json.zst"
)

var errCorrupt = errors.New("cache entry corrupt")

type fileCache struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newFileCache(dir string) *fileCache {
	// Neither constructor fails without options that can be invalid.
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	return &fileCache{dir: dir, encoder: enc, decoder: dec}
}

func (f *fileCache) path(key string) string {
	return filepath.Join(f.dir, key+fileSuffix)
}

func (f *fileCache) read(key string) (cachedBody, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return cachedBody{}, err
	}
	return f.decode(data)
}

func (f *fileCache) decode(data []byte) (cachedBody, error) {
	if len(data) < checksumSize {
		return cachedBody{}, fmt.Errorf("%w: %d bytes", errCorrupt, len(data))
	}
	sum := binary.LittleEndian.Uint64(data[:checksumSize])
	compressed := data[checksumSize:]
	if xxhash.Sum64(compressed) != sum {
		return cachedBody{}, fmt.Errorf("%w: checksum mismatch", errCorrupt)
	}
	payload, err := f.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return cachedBody{}, fmt.Errorf("%w: %w", errCorrupt, err)
	}
	if len(payload) < stampSize {
		return cachedBody{}, fmt.Errorf("%w: missing timestamp", errCorrupt)
	}
	nanos := int64(binary.LittleEndian.Uint64(payload[:stampSize]))
	return cachedBody{body: payload[stampSize:], fetchedAt: time.Unix(0, nanos)}, nil
}

func (f *fileCache) encode(e cachedBody) []byte {
	payload := make([]byte, stampSize, stampSize+len(e.body))
	binary.LittleEndian.PutUint64(payload, uint64(e.fetchedAt.UnixNano()))
	payload = append(payload, e.body...)

	out := make([]byte, checksumSize, checksumSize+len(payload)/2)
	out = f.encoder.EncodeAll(payload, out)
	binary.LittleEndian.PutUint64(out[:checksumSize], xxhash.Sum64(out[checksumSize:]))
	return out
}

func (f *fileCache) write(key string, e cachedBody) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(f.encode(e)); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache entry: %w", err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		return fmt.Errorf("rename cache entry: %w", err)
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
