package web

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sitecontent/internal/assets"
	"sitecontent/pkg/domain"
)

func (s *Server) uploadFiles(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.bodyLimit())
	form, err := c.MultipartForm()
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.failErr(c, err)
			return
		}
		s.failErr(c, domain.ValidationError{Field: "file", Reason: "multipart form required"})
		return
	}
	var headers []*multipart.FileHeader
	for _, name := range imageFields {
		headers = append(headers, form.File[name]...)
	}
	if len(headers) == 0 {
		s.failErr(c, domain.ValidationError{Field: "file", Reason: "no file uploaded"})
		return
	}
	files, err := s.uploader.SaveAll(c.Request.Context(), headers)
	if err != nil {
		s.failErr(c, err)
		return
	}
	if len(files) == 1 {
		respond(c, http.StatusCreated, "File uploaded", files[0])
		return
	}
	respond(c, http.StatusCreated, "Files uploaded", files)
}

// serveAsset resolves /images/*, /uploads/* and /images/uploads/* through
// the fallback chain.
func (s *Server) serveAsset(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")
	if strings.HasPrefix(c.FullPath(), "/images") {
		name = strings.TrimPrefix(name, "uploads/")
	}
	asset, err := s.assets.Resolve(c.Request.Context(), name)
	if err != nil {
		s.failErr(c, err)
		return
	}
	defer asset.Body.Close()

	h := c.Writer.Header()
	h.Set("Content-Type", asset.ContentType)
	h.Set("Content-Length", strconv.FormatInt(asset.Size, 10))
	h.Set("X-Asset-Source", string(asset.Source))
	if asset.Source == assets.SourcePlaceholder {
		h.Set("Cache-Control", "no-cache")
	} else {
		h.Set("Cache-Control", "public, max-age=3600")
	}
	if !asset.ModTime.IsZero() {
		h.Set("Last-Modified", asset.ModTime.UTC().Format(http.TimeFormat))
	}
	c.Status(http.StatusOK)
	if c.Request.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(c.Writer, asset.Body); err != nil {
		s.logger.Warn("asset write failed", "name", name, "error", err)
	}
}

type healthResponse struct {
	Status     string `json:"status"`
	Driver     string `json:"driver"`
	BlobDriver string `json:"blobDriver,omitempty"`
	Revision   int64  `json:"revision"`
	Uptime     string `json:"uptime"`
}

func (s *Server) health(c *gin.Context) {
	h, err := s.svc.Health(c.Request.Context())
	if err != nil {
		s.failErr(c, err)
		return
	}
	respond(c, http.StatusOK, "OK", healthResponse{
		Status:     "ok",
		Driver:     h.Driver,
		BlobDriver: s.blobs,
		Revision:   h.Revision,
		Uptime:     h.Uptime.Round(time.Second).String(),
	})
}

func (s *Server) enqueueSync(c *gin.Context) {
	job, err := s.jobs.Enqueue(c.Request.Context(), c.GetString("user"))
	if err != nil {
		s.failErr(c, err)
		return
	}
	respond(c, http.StatusAccepted, "Sync queued", job)
}

func (s *Server) getSync(c *gin.Context) {
	job, ok := s.jobs.Get(c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, "Sync job not found")
		return
	}
	respond(c, http.StatusOK, "Sync job retrieved", job)
}

func (s *Server) listExports(c *gin.Context) {
	list, err := s.jobs.List(c.Request.Context())
	if err != nil {
		s.failErr(c, err)
		return
	}
	respond(c, http.StatusOK, "Exports retrieved", list)
}

type importRequest struct {
	Key string `json:"key"`
}

func (s *Server) importExport(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Key == "" {
		s.failErr(c, domain.ValidationError{Field: "key", Reason: "required"})
		return
	}
	rev, err := s.jobs.Import(c.Request.Context(), req.Key)
	if err != nil {
		s.failErr(c, err)
		return
	}
	respond(c, http.StatusOK, "Export imported", gin.H{"key": req.Key, "revision": rev})
}
