package tle

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrNoSnapshot is returned by Cache.Latest when the directory holds no snapshot.
var ErrNoSnapshot = errors.New("no catalog snapshot")

const (
	snapshotPrefix = "catalog_"
	snapshotSuffix = ".tle"
)

// Cache keeps timestamped catalog snapshots on disk.
type Cache struct {
	dir      string
	maxFiles int
}

// NewCache creates a Cache that stores snapshots in dir and keeps at most maxFiles.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{dir: dir, maxFiles: maxFiles}
}

// Save writes ds as a three-line catalog named after its load time, then
// prunes the oldest snapshots beyond the retention limit.
func (c *Cache) Save(ds *Dataset) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache dir: %w", err)
	}

	var buf bytes.Buffer
	for _, e := range ds.Elements {
		if e.Name != "" {
			buf.WriteString(e.Name)
			buf.WriteByte('\n')
		}
		buf.WriteString(e.Line1)
		buf.WriteByte('\n')
		buf.WriteString(e.Line2)
		buf.WriteByte('\n')
	}

	path := filepath.Join(c.dir, snapshotPrefix+strconv.FormatInt(ds.LoadedAt.Unix(), 10)+snapshotSuffix)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return path, c.prune()
}

// Latest parses the newest snapshot. The returned dataset keeps the
// snapshot timestamp as its load time.
func (c *Cache) Latest(logger *slog.Logger) (*Dataset, error) {
	files, err := c.snapshots()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoSnapshot
	}

	latest := files[len(files)-1]
	f, err := os.Open(filepath.Join(c.dir, latest.name))
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	elements, err := Parse(f, logger)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", latest.name, err)
	}
	return NewDataset("cache:"+latest.name, latest.ts, elements), nil
}

type snapshot struct {
	name string
	ts   time.Time
}

// snapshots lists snapshot files oldest first.
func (c *Cache) snapshots() ([]snapshot, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var files []snapshot
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, snapshot{name: name, ts: time.Unix(unix, 0).UTC()})
	}
	slices.SortFunc(files, func(a, b snapshot) int { return a.ts.Compare(b.ts) })
	return files, nil
}

func (c *Cache) prune() error {
	files, err := c.snapshots()
	if err != nil {
		return err
	}
	for len(files) > c.maxFiles {
		if err := os.Remove(filepath.Join(c.dir, files[0].name)); err != nil {
			return fmt.Errorf("pruning snapshot %s: %w", files[0].name, err)
		}
		files = files[1:]
	}
	return nil
}
