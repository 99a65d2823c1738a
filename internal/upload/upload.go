// Package upload stores multipart image uploads in the blob store under
// generated unique names.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"sitecontent/internal/blob"
	"sitecontent/pkg/domain"
)

// DefaultMaxSize is the per-file ceiling used when none is configured.
const DefaultMaxSize int64 = 10 * 1000 * 1000

// KeyPrefix is the blob key prefix of uploaded files.
const KeyPrefix = "uploads/"

var allowed = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ErrTooLarge is returned for files above the size ceiling.
var ErrTooLarge = errors.New("file too large")

// File describes a stored upload as returned to clients.
type File struct {
	URL         string `json:"url"`
	AbsoluteURL string `json:"absoluteUrl"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	MimeType    string `json:"mimetype"`
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithMaxSize sets the per-file size ceiling in bytes.
func WithMaxSize(n int64) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.maxSize = n
		}
	}
}

// WithBaseURL sets the public base URL prefixed to absoluteUrl.
func WithBaseURL(base string) Option {
	return func(u *Uploader) { u.baseURL = strings.TrimRight(base, "/") }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// WithStoredHook registers a callback invoked with the blob key of every stored file.
func WithStoredHook(fn func(key string)) Option {
	return func(u *Uploader) { u.onStored = fn }
}

// WithClock overrides the time source used for generated names.
func WithClock(now func() time.Time) Option {
	return func(u *Uploader) { u.now = now }
}

// Uploader validates and stores uploaded files.
type Uploader struct {
	store    blob.Store
	maxSize  int64
	baseURL  string
	logger   *slog.Logger
	onStored func(key string)
	now      func() time.Time
}

// New constructs an Uploader writing into store.
func New(store blob.Store, opts ...Option) *Uploader {
	u := &Uploader{
		store:   store,
		maxSize: DefaultMaxSize,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// MaxSize returns the per-file ceiling in bytes.
func (u *Uploader) MaxSize() int64 { return u.maxSize }

// Allowed reports whether name carries an allowed image extension.
func Allowed(name string) bool {
	_, ok := allowed[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ContentType returns the MIME type for an allowed extension.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := allowed[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}

// Validate checks extension and size of every header without storing anything.
func (u *Uploader) Validate(headers []*multipart.FileHeader) error {
	for _, fh := range headers {
		if !Allowed(fh.Filename) {
			return domain.ValidationError{Field: "file", Reason: "only image files are allowed (jpg, jpeg, png, gif, webp)"}
		}
		if fh.Size > u.maxSize {
			return fmt.Errorf("%w: %s exceeds %s", ErrTooLarge, fh.Filename, humanize.Bytes(uint64(u.maxSize)))
		}
	}
	return nil
}

// SaveAll validates every file first and then stores them. When a later file
// fails, files stored earlier in the batch are removed again.
func (u *Uploader) SaveAll(ctx context.Context, headers []*multipart.FileHeader) ([]File, error) {
	if err := u.Validate(headers); err != nil {
		return nil, err
	}
	out := make([]File, 0, len(headers))
	for _, fh := range headers {
		f, err := u.save(ctx, fh)
		if err != nil {
			u.Discard(ctx, out)
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Save stores a single file.
func (u *Uploader) Save(ctx context.Context, fh *multipart.FileHeader) (File, error) {
	files, err := u.SaveAll(ctx, []*multipart.FileHeader{fh})
	if err != nil {
		return File{}, err
	}
	return files[0], nil
}

// Discard removes previously stored files, e.g. when the record they were
// uploaded for could not be written.
func (u *Uploader) Discard(ctx context.Context, files []File) {
	for _, f := range files {
		key := KeyPrefix + f.Filename
		if _, err := u.store.Delete(ctx, key); err != nil {
			u.logger.Warn("discard upload failed", "key", key, "error", err)
		}
	}
}

// URLs returns the public paths of files.
func URLs(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.URL
	}
	return out
}

func (u *Uploader) save(ctx context.Context, fh *multipart.FileHeader) (File, error) {
	src, err := fh.Open()
	if err != nil {
		return File{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	contentType := ContentType(fh.Filename)
	body := io.LimitReader(src, u.maxSize+1)

	name, err := u.freeName(ctx, ext)
	if err != nil {
		return File{}, err
	}
	info, err := u.store.Put(ctx, KeyPrefix+name, body, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"original-name": path.Base(fh.Filename)},
	})
	if err != nil {
		return File{}, fmt.Errorf("store upload %s: %w", fh.Filename, err)
	}
	if info.Size > u.maxSize {
		_, _ = u.store.Delete(ctx, info.Key)
		return File{}, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge, fh.Filename, humanize.Bytes(uint64(u.maxSize)))
	}
	if u.onStored != nil {
		u.onStored(info.Key)
	}
	u.logger.Info("upload stored", "key", info.Key, "size", humanize.Bytes(uint64(info.Size)))

	url := "/uploads/" + name
	return File{
		URL:         url,
		AbsoluteURL: u.baseURL + url,
		Filename:    name,
		Size:        info.Size,
		MimeType:    contentType,
	}, nil
}

// freeName picks a generated name whose key is not taken yet.
func (u *Uploader) freeName(ctx context.Context, ext string) (string, error) {
	for attempt := 0; attempt < 4; attempt++ {
		name := u.uniqueName(ext)
		_, err := u.store.Head(ctx, KeyPrefix+name)
		if errors.Is(err, blob.ErrNotFound) {
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("check upload key: %w", err)
		}
	}
	return "", fmt.Errorf("no free upload name: %w", blob.ErrExists)
}

// uniqueName returns {unixMillis}-{random}{ext}.
func (u *Uploader) uniqueName(ext string) string {
	return fmt.Sprintf("%d-%d%s", u.now().UnixMilli(), rand.IntN(1_000_000_000), ext)
}
