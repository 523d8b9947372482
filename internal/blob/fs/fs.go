// Package fs implements blob.Store on the local filesystem. Keys map to paths
// under the root; a JSON sidecar (key + ".meta") keeps content type and metadata.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MrJamesThe3rd/blockbill/internal/blob"
)

const metaSuffix = ".meta"

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("blob root directory is required")
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}

	return &Store{root: root}, nil
}

var _ blob.Store = (*Store)(nil)

func (s *Store) Driver() blob.Driver { return blob.DriverFilesystem }

// sanitizeKey rejects keys that are empty, absolute, or escape the root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("empty blob key")
	}

	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}

	if strings.HasSuffix(key, metaSuffix) {
		return "", fmt.Errorf("blob key %q uses reserved suffix", key)
	}

	return filepath.ToSlash(filepath.Clean(key)), nil
}

func (s *Store) paths(key string) (data, meta string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}

	data = filepath.Join(s.root, filepath.FromSlash(k))

	return data, data + metaSuffix, nil
}

type metaFile struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Put streams r into a temp file and links it into place, so a key is either
// absent or complete and an existing key is never replaced.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return blob.Info{}, err
	}

	if _, err := os.Stat(dataPath); err == nil {
		return blob.Info{}, fmt.Errorf("%s: %w", key, blob.ErrExists)
	}

	dir := filepath.Dir(dataPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return blob.Info{}, fmt.Errorf("creating blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return blob.Info{}, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}

	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return blob.Info{}, fmt.Errorf("writing blob %s: %w", key, err)
	}

	now := time.Now().UTC()
	mf := metaFile{ContentType: opts.ContentType, Metadata: maps.Clone(opts.Metadata), Size: size, CreatedAt: now}

	// The sidecar goes first so a visible data file always has metadata.
	if err := writeJSON(metaPath, mf); err != nil {
		return blob.Info{}, err
	}

	if err := os.Link(tmp.Name(), dataPath); err != nil {
		if errors.Is(err, iofs.ErrExist) {
			return blob.Info{}, fmt.Errorf("%s: %w", key, blob.ErrExists)
		}

		return blob.Info{}, fmt.Errorf("linking blob %s: %w", key, err)
	}

	return blob.Info{
		Key:          key,
		Size:         size,
		ContentType:  opts.ContentType,
		Metadata:     maps.Clone(opts.Metadata),
		LastModified: now,
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) (blob.Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return blob.Info{}, nil, err
	}

	dataPath, _, _ := s.paths(key)

	f, err := os.Open(dataPath)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return blob.Info{}, nil, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
		}

		return blob.Info{}, nil, fmt.Errorf("opening blob %s: %w", key, err)
	}

	return info, f, nil
}

func (s *Store) Head(_ context.Context, key string) (blob.Info, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return blob.Info{}, err
	}

	if _, err := os.Stat(dataPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return blob.Info{}, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
		}

		return blob.Info{}, fmt.Errorf("stat blob %s: %w", key, err)
	}

	mf, err := readMeta(metaPath)
	if err != nil {
		return blob.Info{}, err
	}

	return blob.Info{
		Key:          key,
		Size:         mf.Size,
		ContentType:  mf.ContentType,
		Metadata:     mf.Metadata,
		LastModified: mf.CreatedAt,
	}, nil
}

// List walks the root and returns blobs whose key starts with prefix, sorted by key.
func (s *Store) List(ctx context.Context, prefix string) ([]blob.Info, error) {
	var out []blob.Info

	err := filepath.WalkDir(s.root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, metaSuffix) || strings.HasSuffix(name, ".tmp") || strings.HasPrefix(name, ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := s.Head(ctx, key)
		if err != nil {
			return err
		}

		out = append(out, info)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing blobs: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return out, nil
}

func writeJSON(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding blob metadata: %w", err)
	}

	tmp := fmt.Sprintf("%s.%d.tmp", path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("writing blob metadata: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing blob metadata: %w", err)
	}

	return nil
}

func readMeta(path string) (metaFile, error) {
	var mf metaFile

	b, err := os.ReadFile(path)
	if err != nil {
		return mf, fmt.Errorf("reading blob metadata: %w", err)
	}

	if err := json.Unmarshal(b, &mf); err != nil {
		return mf, fmt.Errorf("decoding blob metadata: %w", err)
	}

	return mf, nil
}
