package core

import (
	"context"
	"errors"
	"strings"

	"sitecontent/internal/blob"
)

// UploadKey maps a public upload path ("/uploads/x.png" or
// "/images/uploads/x.png") to its blob key. ok is false for paths that do
// not point at an uploaded file.
func UploadKey(path string) (string, bool) {
	p := strings.TrimPrefix(path, "/images")
	if !strings.HasPrefix(p, "/uploads/") {
		return "", false
	}
	name := strings.TrimPrefix(p, "/uploads/")
	if name == "" || strings.Contains(name, "..") {
		return "", false
	}
	return "uploads/" + name, true
}

// removeUploads deletes blobs for uploaded images no longer referenced.
// Failures are logged and never fail the request.
func (s *Service) removeUploads(ctx context.Context, paths []string) {
	if s.blobs == nil {
		return
	}
	for _, p := range paths {
		key, ok := UploadKey(p)
		if !ok {
			continue
		}
		removed, err := s.blobs.Delete(ctx, key)
		switch {
		case err != nil && !errors.Is(err, blob.ErrNotFound):
			s.logger.Warn("remove upload failed", "key", key, "error", err)
		case removed:
			s.logger.Debug("upload removed", "key", key)
			if s.onBlobRemoved != nil {
				s.onBlobRemoved(key)
			}
		}
	}
}
