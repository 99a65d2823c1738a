// Package assets resolves requested image names against the blob store and a
// list of candidate directories, falling back to default images and finally
// to a generated placeholder.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"sitecontent/internal/blob"
)

// Source identifies which stage of the chain produced an asset.
type Source string

const (
	SourcePrimary     Source = "primary"
	SourceFallback    Source = "fallback"
	SourcePlaceholder Source = "placeholder"
)

// ErrNotFound is returned for names that are not image-like or that try to
// escape the asset roots.
var ErrNotFound = errors.New("asset not found")

// DefaultDirs are probed when no directories are configured.
var DefaultDirs = []string{"images", "uploads", filepath.Join("public", "images", "uploads")}

// FallbackNames are probed when the requested name matched nothing.
var FallbackNames = []string{"default.jpg", "default.png", "placeholder.jpg", "placeholder.png"}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true, ".avif": true, ".ico": true,
}

const blobPrefix = "uploads/"

// Asset is a resolved file ready to be written to a response.
type Asset struct {
	Name        string
	Source      Source
	ContentType string
	Size        int64
	ModTime     time.Time
	Body        io.ReadCloser
}

// location records where a name was last found. dir is empty for the blob store.
type location struct {
	dir  string
	name string
	src  Source
}

// Observer is notified of every resolution outcome.
type Observer func(source Source)

// Option configures a Resolver.
type Option func(*Resolver)

// WithDirs sets the candidate directories, probed in order after the blob store.
func WithDirs(dirs ...string) Option {
	return func(r *Resolver) { r.dirs = append([]string(nil), dirs...) }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver installs a resolution observer, e.g. a metrics counter.
func WithObserver(fn Observer) Option {
	return func(r *Resolver) { r.observe = fn }
}

// WithCacheSize sets the number of cached resolutions.
func WithCacheSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.cacheSize = n
		}
	}
}

// Resolver implements the fallback chain.
type Resolver struct {
	blobs     blob.Store
	dirs      []string
	logger    *slog.Logger
	observe   Observer
	cacheSize int
	cache     *lru.Cache[string, location]
}

// New constructs a resolver. blobs may be nil to probe directories only.
func New(blobs blob.Store, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		blobs:     blobs,
		dirs:      DefaultDirs,
		logger:    slog.Default(),
		cacheSize: 512,
	}
	for _, opt := range opts {
		opt(r)
	}
	cache, err := lru.New[string, location](r.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("assets cache: %w", err)
	}
	r.cache = cache
	return r, nil
}

// Invalidate drops every cached resolution. Called after uploads and deletes.
func (r *Resolver) Invalidate() { r.cache.Purge() }

// Clean validates a requested name and returns its cleaned relative form.
func Clean(name string) (string, error) {
	name = strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "/")
	if name == "" {
		return "", ErrNotFound
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", ErrNotFound
		}
	}
	cleaned := path.Clean(name)
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", ErrNotFound
	}
	if !imageExts[strings.ToLower(path.Ext(cleaned))] {
		return "", ErrNotFound
	}
	return cleaned, nil
}

// Resolve finds name through the chain. It only fails with ErrNotFound for
// names rejected by Clean; every image-like name yields an asset.
func (r *Resolver) Resolve(ctx context.Context, name string) (Asset, error) {
	cleaned, err := Clean(name)
	if err != nil {
		return Asset{}, err
	}
	if loc, ok := r.cache.Get(cleaned); ok {
		if asset, err := r.open(ctx, loc); err == nil {
			return r.done(asset), nil
		}
		r.cache.Remove(cleaned)
	}
	if asset, loc, ok := r.probe(ctx, cleaned, SourcePrimary); ok {
		r.cache.Add(cleaned, loc)
		return r.done(asset), nil
	}
	for _, fallback := range FallbackNames {
		if asset, loc, ok := r.probe(ctx, fallback, SourceFallback); ok {
			r.cache.Add(cleaned, loc)
			return r.done(asset), nil
		}
	}
	r.logger.Debug("asset placeholder served", "name", cleaned)
	body := Placeholder()
	return r.done(Asset{
		Name:        cleaned,
		Source:      SourcePlaceholder,
		ContentType: "image/png",
		Size:        int64(len(body)),
		Body:        io.NopCloser(bytes.NewReader(body)),
	}), nil
}

func (r *Resolver) done(a Asset) Asset {
	if r.observe != nil {
		r.observe(a.Source)
	}
	return a
}

func (r *Resolver) probe(ctx context.Context, name string, src Source) (Asset, location, bool) {
	candidates := make([]location, 0, len(r.dirs)+1)
	if r.blobs != nil {
		candidates = append(candidates, location{name: name, src: src})
	}
	for _, dir := range r.dirs {
		candidates = append(candidates, location{dir: dir, name: name, src: src})
	}
	for _, loc := range candidates {
		asset, err := r.open(ctx, loc)
		if err == nil {
			return asset, loc, true
		}
		if !errors.Is(err, blob.ErrNotFound) && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("asset probe failed", "dir", loc.dir, "name", name, "error", err)
		}
	}
	return Asset{}, location{}, false
}

func (r *Resolver) open(ctx context.Context, loc location) (Asset, error) {
	if loc.dir == "" {
		if r.blobs == nil {
			return Asset{}, blob.ErrNotFound
		}
		info, rc, err := r.blobs.Get(ctx, blobPrefix+loc.name)
		if err != nil {
			return Asset{}, err
		}
		ct := info.ContentType
		if ct == "" {
			ct = mime.TypeByExtension(path.Ext(loc.name))
		}
		return Asset{Name: loc.name, Source: loc.src, ContentType: ct, Size: info.Size, ModTime: info.LastModified, Body: rc}, nil
	}
	full := filepath.Join(loc.dir, filepath.FromSlash(loc.name))
	f, err := os.Open(full)
	if err != nil {
		return Asset{}, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return Asset{}, err
	}
	if st.IsDir() {
		f.Close()
		return Asset{}, os.ErrNotExist
	}
	return Asset{
		Name:        loc.name,
		Source:      loc.src,
		ContentType: mime.TypeByExtension(path.Ext(loc.name)),
		Size:        st.Size(),
		ModTime:     st.ModTime(),
		Body:        f,
	}, nil
}
