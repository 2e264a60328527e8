package checkpoint

import (
	"errors"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func TestCAS_StoreAndRetrieveRoundTrip(t *testing.T) {
	c := newCAS(t.TempDir(), zstd.SpeedDefault)
	payload := []byte(`{"hello":"world","n":1}`)

	hash, size, ratio, err := c.Store(payload)
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	require.Greater(t, size, int64(0))
	require.Greater(t, ratio, 0.0)

	got, err := c.Retrieve(hash)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestCAS_IdenticalPayloadsShareOneBlob(t *testing.T) {
	c := newCAS(t.TempDir(), zstd.SpeedDefault)
	payload := []byte(`{"same":"content"}`)

	hash1, _, _, err := c.Store(payload)
	require.NoError(t, err)
	hash2, _, _, err := c.Store(payload)
	require.NoError(t, err)

	require.Equal(t, hash1, hash2)
}

func TestCAS_RetrieveMissingBlob(t *testing.T) {
	c := newCAS(t.TempDir(), zstd.SpeedDefault)
	_, err := c.Retrieve("0000000000000000000000000000000000000000000000000000000000000000")
	require.True(t, errors.Is(err, errBlobNotFound))
}

func TestCAS_DeleteThenMissing(t *testing.T) {
	c := newCAS(t.TempDir(), zstd.SpeedDefault)
	hash, _, _, err := c.Store([]byte("some content"))
	require.NoError(t, err)

	require.NoError(t, c.Delete(hash))
	_, err = c.Retrieve(hash)
	require.True(t, errors.Is(err, errBlobNotFound))

	// Deleting an already-absent blob is a no-op.
	require.NoError(t, c.Delete(hash))
}
