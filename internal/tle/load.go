package tle

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ErrEmptyCatalog is returned when a catalog yields no valid element set.
var ErrEmptyCatalog = errors.New("catalog contains no valid element sets")

// LoadFile parses the catalog file at path into a dataset loaded at now.
func LoadFile(path string, now time.Time, logger *slog.Logger) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()

	elements, err := Parse(f, logger)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyCatalog)
	}
	return NewDataset("file:"+path, now, elements), nil
}

// Loader fills a Store from a catalog file and keeps on-disk snapshots of
// every catalog it installs.
type Loader struct {
	path   string
	cache  *Cache // may be nil
	store  *Store
	logger *slog.Logger
	now    func() time.Time
}

// NewLoader creates a Loader reading path into store. cache may be nil.
func NewLoader(store *Store, path string, cache *Cache, logger *slog.Logger) *Loader {
	return &Loader{
		path:   path,
		cache:  cache,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Reload parses the catalog file and installs it. When the file is
// unusable and the store is still empty, the newest cached snapshot is
// installed instead and the file error is returned alongside it.
func (l *Loader) Reload() error {
	l.store.Lock()
	defer l.store.Unlock()

	ds, err := l.loadFile()
	if err == nil {
		l.store.Set(ds)
		l.logger.Info("catalog loaded",
			"source", ds.Source,
			"count", ds.Len(),
			"epoch_min", ds.EpochRange.Min.Format(time.RFC3339),
			"epoch_max", ds.EpochRange.Max.Format(time.RFC3339),
		)
		if l.cache != nil {
			if _, serr := l.cache.Save(ds); serr != nil {
				l.logger.Warn("failed to save catalog snapshot", "error", serr)
			}
		}
		return nil
	}

	if l.store.Get() != nil || l.cache == nil {
		return err
	}
	cached, cerr := l.cache.Latest(l.logger)
	if cerr != nil {
		l.logger.Info("no catalog snapshot available", "error", cerr)
		return err
	}
	l.store.Set(cached)
	l.logger.Warn("catalog file unusable, loaded cached snapshot",
		"error", err,
		"source", cached.Source,
		"count", cached.Len(),
		"cached_at", cached.LoadedAt.Format(time.RFC3339),
	)
	return err
}

func (l *Loader) loadFile() (*Dataset, error) {
	if l.path == "" {
		return nil, errors.New("no catalog path configured")
	}
	return LoadFile(l.path, l.now(), l.logger)
}
