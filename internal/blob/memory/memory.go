// Package memory implements an in-memory blob Store for tests and single-process runs.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrJamesThe3rd/blockbill/internal/blob"
)

type object struct {
	info blob.Info
	data []byte
}

type Store struct {
	mu   sync.RWMutex
	objs map[string]object
}

func New() *Store { return &Store{objs: make(map[string]object)} }

var _ blob.Store = (*Store)(nil)

func (s *Store) Driver() blob.Driver { return blob.DriverMemory }

func (s *Store) Put(_ context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return blob.Info{}, fmt.Errorf("reading blob %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objs[key]; exists {
		return blob.Info{}, fmt.Errorf("%s: %w", key, blob.ErrExists)
	}

	info := blob.Info{
		Key:          key,
		Size:         int64(len(b)),
		ContentType:  opts.ContentType,
		Metadata:     maps.Clone(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.objs[key] = object{info: info, data: b}

	return info, nil
}

func (s *Store) Get(_ context.Context, key string) (blob.Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()

	if !ok {
		return blob.Info{}, nil, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
	}

	info := obj.info
	info.Metadata = maps.Clone(info.Metadata)

	return info, io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

func (s *Store) Head(_ context.Context, key string) (blob.Info, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()

	if !ok {
		return blob.Info{}, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
	}

	info := obj.info
	info.Metadata = maps.Clone(info.Metadata)

	return info, nil
}

// List returns blobs whose key starts with prefix, sorted by key.
func (s *Store) List(_ context.Context, prefix string) ([]blob.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []blob.Info

	for k, obj := range s.objs {
		if strings.HasPrefix(k, prefix) {
			info := obj.info
			info.Metadata = maps.Clone(info.Metadata)
			out = append(out, info)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return out, nil
}
