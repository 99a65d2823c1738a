package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"sitecontent/internal/core"
	"sitecontent/internal/upload"
	"sitecontent/pkg/domain"
)

// imageFields are the multipart fields whose files attach to a record.
var imageFields = []string{"images", "image", "files", "file"}

func (s *Server) list(col domain.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := listQuery(col, c)
		if err != nil {
			s.failErr(c, err)
			return
		}
		recs, err := s.svc.List(c.Request.Context(), col, q)
		if err != nil {
			s.failErr(c, err)
			return
		}
		respond(c, http.StatusOK, fmt.Sprintf("%s retrieved", col.Singular()), recs)
	}
}

func listQuery(col domain.Collection, c *gin.Context) (core.ListQuery, error) {
	q := core.ListQuery{Filters: map[string]string{}}
	schema, _ := domain.SchemaFor(col)
	for key, values := range c.Request.URL.Query() {
		if len(values) == 0 {
			continue
		}
		v := values[0]
		switch key {
		case "category", "categoryId":
			q.Category = v
		case "featured":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return q, domain.ValidationError{Field: key, Reason: "expected boolean"}
			}
			q.Featured = &b
		case "limit":
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return q, domain.ValidationError{Field: key, Reason: "expected non-negative integer"}
			}
			q.Limit = n
		case "sort":
			q.Sort = v
		default:
			if _, ok := schema.Field(key); ok {
				q.Filters[key] = v
			}
		}
	}
	return q, nil
}

func (s *Server) get(col domain.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.pathID(c)
		if !ok {
			return
		}
		rec, err := s.svc.Get(c.Request.Context(), col, id)
		if err != nil {
			s.failErr(c, err)
			return
		}
		respond(c, http.StatusOK, fmt.Sprintf("%s retrieved", col.Singular()), rec)
	}
}

func (s *Server) getBySlug(col domain.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := s.svc.GetBySlug(c.Request.Context(), col, c.Param("slug"))
		if err != nil {
			s.failErr(c, err)
			return
		}
		respond(c, http.StatusOK, fmt.Sprintf("%s retrieved", col.Singular()), rec)
	}
}

func (s *Server) create(col domain.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		in, files, err := s.readInput(c, col)
		if err != nil {
			s.failErr(c, err)
			return
		}
		rec, err := s.svc.Create(c.Request.Context(), col, in)
		if err != nil {
			s.uploader.Discard(c.Request.Context(), files)
			s.failErr(c, err)
			return
		}
		respond(c, http.StatusCreated, fmt.Sprintf("%s created", col.Singular()), rec)
	}
}

func (s *Server) update(col domain.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.pathID(c)
		if !ok {
			return
		}
		in, files, err := s.readInput(c, col)
		if err != nil {
			s.failErr(c, err)
			return
		}
		if rev := ifMatch(c.GetHeader("If-Match")); rev > 0 {
			in.ExpectedRevision = rev
		}
		rec, err := s.svc.Update(c.Request.Context(), col, id, in)
		if err != nil {
			s.uploader.Discard(c.Request.Context(), files)
			s.failErr(c, err)
			return
		}
		respond(c, http.StatusOK, fmt.Sprintf("%s updated", col.Singular()), rec)
	}
}

func (s *Server) remove(col domain.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.pathID(c)
		if !ok {
			return
		}
		rec, err := s.svc.Delete(c.Request.Context(), col, id)
		if err != nil {
			s.failErr(c, err)
			return
		}
		respond(c, http.StatusOK, fmt.Sprintf("%s deleted", col.Singular()), rec)
	}
}

func (s *Server) addNavigationChild(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	in, files, err := s.readInput(c, domain.CollectionNavigation)
	if err != nil {
		s.failErr(c, err)
		return
	}
	rec, err := s.svc.AddNavigationChild(c.Request.Context(), id, in)
	if err != nil {
		s.uploader.Discard(c.Request.Context(), files)
		s.failErr(c, err)
		return
	}
	respond(c, http.StatusCreated, "Navigation item created", rec)
}

func (s *Server) pathID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		s.failErr(c, domain.ValidationError{Field: "id", Reason: "expected positive integer"})
		return 0, false
	}
	return id, true
}

// ifMatch parses a revision from an If-Match header such as `"3"` or `W/"3"`.
func ifMatch(v string) int {
	v = strings.Trim(strings.TrimPrefix(strings.TrimSpace(v), "W/"), `"`)
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// readInput decodes a JSON or multipart body. Multipart files are stored
// right away; the returned files must be discarded if the record write fails.
func (s *Server) readInput(c *gin.Context, col domain.Collection) (core.Input, []upload.File, error) {
	schema, ok := domain.SchemaFor(col)
	if !ok {
		return core.Input{}, nil, fmt.Errorf("%w: %s", domain.ErrUnknownCollection, col)
	}
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return s.readMultipart(c, schema)
	}
	fields := map[string]any{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&fields); err != nil && !errors.Is(err, io.EOF) {
			return core.Input{}, nil, domain.ValidationError{Reason: "invalid JSON body: " + err.Error()}
		}
	}
	return core.Input{Fields: fields, ReplaceImages: truthy(fields["replaceImages"])}, nil, nil
}

func (s *Server) readMultipart(c *gin.Context, schema domain.Schema) (core.Input, []upload.File, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.bodyLimit())
	form, err := c.MultipartForm()
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return core.Input{}, nil, err
		}
		return core.Input{}, nil, domain.ValidationError{Reason: "invalid multipart body: " + err.Error()}
	}
	values := make(map[string][]string, len(form.Value))
	replace := false
	for k, v := range form.Value {
		if k == "replaceImages" {
			replace = len(v) > 0 && truthy(v[0])
			continue
		}
		values[k] = v
	}
	var headers []*multipart.FileHeader
	for _, name := range imageFields {
		headers = append(headers, form.File[name]...)
	}
	var files []upload.File
	if len(headers) > 0 {
		files, err = s.uploader.SaveAll(c.Request.Context(), headers)
		if err != nil {
			return core.Input{}, nil, err
		}
	}
	return core.Input{
		Fields:        schema.Coerce(values),
		Uploaded:      upload.URLs(files),
		ReplaceImages: replace,
	}, files, nil
}

// bodyLimit bounds a multipart request: room for several files plus form fields.
func (s *Server) bodyLimit() int64 {
	return s.uploader.MaxSize()*10 + 1<<20
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	}
	return false
}
