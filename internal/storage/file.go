package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "pzrelay/pkg/logx"
)

// fileStore keeps the catalog in memory and rewrites one JSON file
// (write to temp, fsync, rename) after every change.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	mods   map[string]TrackedMod
	closed bool
}

type fileDoc struct {
	Tracks []TrackedMod `json:"workshop_tracks"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: path, mods: map[string]TrackedMod{}}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		var doc fileDoc
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, err
		}
		for _, m := range doc.Tracks {
			s.mods[m.ModID] = m
		}
	}
	log.Info("storage opened", logx.String("driver", "file"), logx.String("path", path), logx.Int("mods", len(s.mods)))
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) TrackedMods(ctx context.Context) ([]TrackedMod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.sortedLocked(), nil
}

func (s *fileStore) UpdateModTimestamp(ctx context.Context, modID string, ts int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	m, ok := s.mods[modID]
	if !ok {
		return false, nil
	}
	prev := m.LastUpdated
	m.LastUpdated = ts
	s.mods[modID] = m
	if err := s.flushLocked(); err != nil {
		m.LastUpdated = prev
		s.mods[modID] = m
		return false, err
	}
	return true, nil
}

func (s *fileStore) TrackMod(ctx context.Context, m TrackedMod) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.mods[m.ModID]; ok {
		return false, nil
	}
	s.mods[m.ModID] = m
	if err := s.flushLocked(); err != nil {
		delete(s.mods, m.ModID)
		return false, err
	}
	return true, nil
}

func (s *fileStore) sortedLocked() []TrackedMod {
	out := make([]TrackedMod, 0, len(s.mods))
	for _, m := range s.mods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModID < out[j].ModID })
	return out
}

func (s *fileStore) flushLocked() error {
	b, err := json.MarshalIndent(fileDoc{Tracks: s.sortedLocked()}, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
