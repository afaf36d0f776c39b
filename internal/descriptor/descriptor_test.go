package descriptor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := Descriptor{Address: "127.0.0.1:4242", AuthKey: "deadbeef"}

	require.NoError(t, Write(fs, "broker.json", d, false))

	got, err := Read(fs, "broker.json")
	require.NoError(t, err)
	assert.Equal(t, d, got)

	key, err := got.Key()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, key)
	assert.Equal(t, "ws://127.0.0.1:4242/v1/relay", got.URL())
}

func TestWrite_RefusesToOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := Descriptor{Address: "a:1", AuthKey: "00"}

	require.NoError(t, Write(fs, "broker.json", d, false))

	err := Write(fs, "broker.json", Descriptor{Address: "b:2", AuthKey: "11"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// The overwrite flag replaces it.
	require.NoError(t, Write(fs, "broker.json", Descriptor{Address: "b:2", AuthKey: "11"}, true))
	got, err := Read(fs, "broker.json")
	require.NoError(t, err)
	assert.Equal(t, "b:2", got.Address)
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(afero.NewMemMapFs(), "nope.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRead_Incomplete(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "broker.json", []byte(`{"address":"a:1"}`), 0o600))

	_, err := Read(fs, "broker.json")
	require.Error(t, err)
}

func TestKey_BadHex(t *testing.T) {
	_, err := Descriptor{AuthKey: "not hex"}.Key()
	require.Error(t, err)
}

func TestWatch_SeesRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.json")
	osFs := afero.NewOsFs()

	require.NoError(t, Write(osFs, path, Descriptor{Address: "a:1", AuthKey: "00"}, false))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	changes, err := Watch(ctx, path)
	require.NoError(t, err)

	// A broker restart rewrites the file with a new address and key.
	require.NoError(t, Write(osFs, path, Descriptor{Address: "b:2", AuthKey: "11"}, true))

	select {
	case d := <-changes:
		assert.Equal(t, "b:2", d.Address)
	case <-ctx.Done():
		t.Fatal("watch never reported the rewrite")
	}

	cancel()
	// The channel closes once the watch winds down.
	for range changes {
	}
}
