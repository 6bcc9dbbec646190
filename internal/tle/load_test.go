package tle

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "active.tle")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	var buf bytes.Buffer
	path := writeCatalog(t, t.TempDir(), "ISS (ZARYA)\n"+issLine1+"\n"+issLine2+"\n"+geoLine1+"\n"+geoLine2+"\n")
	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	ds, err := LoadFile(path, now, testLogger(&buf))
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, "file:"+path, ds.Source)
	assert.Equal(t, now, ds.LoadedAt)
}

func TestLoadFileErrors(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.tle"), time.Now(), testLogger(&buf))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := writeCatalog(t, dir, "not a catalog\n")
	_, err = LoadFile(path, time.Now(), testLogger(&buf))
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestLoaderReload(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	path := writeCatalog(t, dir, issLine1+"\n"+issLine2+"\n")
	cache := NewCache(filepath.Join(dir, "cache"), 3)
	store := NewStore()

	l := NewLoader(store, path, cache, testLogger(&buf))
	l.now = func() time.Time { return time.Unix(1712750400, 0).UTC() }
	require.NoError(t, l.Reload())
	require.NotNil(t, store.Get())
	assert.Equal(t, uint64(1), store.Version())

	snap, err := cache.Latest(testLogger(&buf))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
}

func TestLoaderFallsBackToSnapshot(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	cache := NewCache(filepath.Join(dir, "cache"), 3)
	_, err := cache.Save(NewDataset("seed", time.Unix(1712750400, 0).UTC(), []*ElementSet{mustParse(t, issLine1, issLine2)}))
	require.NoError(t, err)

	store := NewStore()
	l := NewLoader(store, filepath.Join(dir, "missing.tle"), cache, testLogger(&buf))
	err = l.Reload()
	assert.ErrorIs(t, err, os.ErrNotExist)
	require.NotNil(t, store.Get(), "snapshot should be installed")
	assert.Contains(t, store.Get().Source, "cache:")
	assert.Contains(t, buf.String(), "loaded cached snapshot")

	// A loaded store is never replaced by a snapshot.
	err = l.Reload()
	assert.Error(t, err)
	assert.Equal(t, uint64(1), store.Version())
}

func TestLoaderNoPath(t *testing.T) {
	var buf bytes.Buffer
	store := NewStore()
	err := NewLoader(store, "", nil, testLogger(&buf)).Reload()
	assert.Error(t, err)
	assert.Nil(t, store.Get())
}
