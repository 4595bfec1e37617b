// Package file persists cache records as one JSON file per key on a billy
// filesystem.
package file

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/crypto/blake2b"

	"github.com/krisalay/cachecenter/types"
)

const (
	recordVersion = "1"
	recordExt     = ".json"
	tmpExt        = ".tmp"
)

// record is the on-disk form of one entry.
type record struct {
	Version  string     `json:"version"`
	Key      []byte     `json:"key"`
	Value    []byte     `json:"value"`
	ExpireAt *time.Time `json:"expire_at,omitempty"`
}

// Gateway stores records under dir. File names are a hash of the key, so keys
// of any length and content are safe. It implements types.Gateway,
// types.Scanner and types.Loader.
type Gateway struct {
	fs  billy.Filesystem
	dir string
	mu  sync.Mutex
}

var (
	_ types.Gateway = (*Gateway)(nil)
	_ types.Scanner = (*Gateway)(nil)
	_ types.Loader  = (*Gateway)(nil)
)

// New opens (creating if needed) a record directory. root is the osfs root
// used when no filesystem option is given.
func New(root string, opts ...Option) (*Gateway, error) {
	g := &Gateway{dir: "records"}
	for _, opt := range opts {
		opt(g)
	}
	if g.fs == nil {
		g.fs = osfs.New(root)
	}

	if err := g.fs.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}
	return g, nil
}

func (g *Gateway) path(key []byte) string {
	sum := blake2b.Sum256(key)
	return g.fs.Join(g.dir, hex.EncodeToString(sum[:])+recordExt)
}

// Persist writes the record atomically: temp file, then rename.
func (g *Gateway) Persist(_ context.Context, key, value []byte, ttl time.Duration) error {
	rec := record{Version: recordVersion, Key: key, Value: value}
	if ttl > 0 {
		at := time.Now().Add(ttl).UTC()
		rec.ExpireAt = &at
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	path := g.path(key)
	tmpPath := path + tmpExt
	if err := util.WriteFile(g.fs, tmpPath, data, 0o644); err != nil {
		_ = g.fs.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary record file: %w", err)
	}
	if err := g.fs.Rename(tmpPath, path); err != nil {
		_ = g.fs.Remove(tmpPath)
		return fmt.Errorf("failed to rename record file: %w", err)
	}
	return nil
}

// RemoveByKey deletes the record file. A missing file is not an error.
func (g *Gateway) RemoveByKey(_ context.Context, key []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.fs.Remove(g.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove record file: %w", err)
	}
	return nil
}

// Load reads the record for key. Stale records are reported as absent.
func (g *Gateway) Load(_ context.Context, key []byte) (types.Record, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := g.read(g.path(key))
	if os.IsNotExist(err) {
		return types.Record{}, false, nil
	}
	if err != nil {
		return types.Record{}, false, err
	}
	if rec.Expired(time.Now()) {
		return types.Record{}, false, nil
	}
	return rec, true, nil
}

// Scan yields every record, stale ones included. Leftover temp files from an
// interrupted Persist are ignored.
func (g *Gateway) Scan(ctx context.Context, fn func(types.Record) error) error {
	g.mu.Lock()
	infos, err := g.fs.ReadDir(g.dir)
	g.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to list record directory: %w", err)
	}

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), recordExt) {
			continue
		}

		g.mu.Lock()
		rec, err := g.read(g.fs.Join(g.dir, info.Name()))
		g.mu.Unlock()
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) read(path string) (types.Record, error) {
	data, err := util.ReadFile(g.fs, path)
	if err != nil {
		return types.Record{}, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return types.Record{}, fmt.Errorf("failed to parse record file %s: %w", path, err)
	}
	if rec.Version != recordVersion {
		return types.Record{}, fmt.Errorf("unsupported record version: %s (expected %s)", rec.Version, recordVersion)
	}

	out := types.Record{Key: rec.Key, Value: rec.Value}
	if rec.ExpireAt != nil {
		out.ExpireAt = *rec.ExpireAt
	}
	return out, nil
}
