package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// cas is the content-addressed blob store backing the Checkpoint Store.
// Blobs are sharded two levels deep by hash prefix (git's objects/
// layout) to keep any one directory from accumulating thousands of
// entries.
type cas struct {
	root  string
	level zstd.EncoderLevel
}

func newCAS(root string, level zstd.EncoderLevel) *cas {
	return &cas{root: root, level: level}
}

func (c *cas) blobPath(hash string) string {
	if len(hash) < 4 {
		return filepath.Join(c.root, "blobs", hash)
	}
	return filepath.Join(c.root, "blobs", hash[:2], hash[2:4], hash+".zst")
}

// Store compresses payload and writes it under the sha256 digest of the
// uncompressed bytes, returning the hash, the stored (compressed) size,
// and the compression ratio. Writing is a no-op when a blob with the
// same hash already exists, since content-addressing guarantees it is
// byte-identical.
func (c *cas) Store(payload []byte) (hash string, storedSize int64, ratio float64, err error) {
	sum := sha256.Sum256(payload)
	hash = hex.EncodeToString(sum[:])

	path := c.blobPath(hash)
	if info, statErr := os.Stat(path); statErr == nil {
		return hash, info.Size(), compressionRatio(len(payload), int(info.Size())), nil
	}

	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", 0, 0, fmt.Errorf("cas: create blob dir: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level))
	if err != nil {
		return "", 0, 0, fmt.Errorf("cas: new encoder: %w", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(payload, nil)

	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, compressed, 0644); err != nil {
		return "", 0, 0, fmt.Errorf("cas: write blob: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", 0, 0, fmt.Errorf("cas: finalize blob: %w", err)
	}

	return hash, int64(len(compressed)), compressionRatio(len(payload), len(compressed)), nil
}

// Retrieve decompresses and returns the blob stored under hash.
func (c *cas) Retrieve(hash string) ([]byte, error) {
	f, err := os.Open(c.blobPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errBlobNotFound
		}
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("cas: new decoder: %w", err)
	}
	defer dec.Close()

	compressed, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	payload, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("cas: decode blob %s: %w", hash, err)
	}
	return payload, nil
}

// Delete removes a blob. Callers must first confirm no other checkpoint
// row still references the hash (Store.collectOrphan does this).
func (c *cas) Delete(hash string) error {
	err := os.Remove(c.blobPath(hash))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func compressionRatio(originalSize, storedSize int) float64 {
	if storedSize == 0 {
		return 0
	}
	return float64(originalSize) / float64(storedSize)
}
