// Package web is the gin HTTP surface: the collection resources, uploads,
// static assets, admin sync endpoints, health and metrics.
package web

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"

	"sitecontent/internal/assets"
	"sitecontent/internal/core"
	"sitecontent/internal/observability"
	"sitecontent/internal/syncjob"
	"sitecontent/internal/upload"
	"sitecontent/pkg/domain"
)

// Deps are the components served over HTTP. Jobs and Metrics are optional.
type Deps struct {
	Service     *core.Service
	Uploader    *upload.Uploader
	Assets      *assets.Resolver
	Jobs        *syncjob.Worker
	Metrics     *observability.Metrics
	Logger      *slog.Logger
	BlobDriver  string
	AuthEnabled bool
	Development bool
}

// Server owns the gin engine.
type Server struct {
	svc      *core.Service
	uploader *upload.Uploader
	assets   *assets.Resolver
	jobs     *syncjob.Worker
	metrics  *observability.Metrics
	logger   *slog.Logger
	blobs    string
	auth     bool
	engine   *gin.Engine
}

// New builds the engine and registers every route.
func New(d Deps) *Server {
	if d.Development {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:      d.Service,
		uploader: d.Uploader,
		assets:   d.Assets,
		jobs:     d.Jobs,
		metrics:  d.Metrics,
		logger:   logger,
		blobs:    d.BlobDriver,
		auth:     d.AuthEnabled,
		engine:   gin.New(),
	}

	r := s.engine
	r.Use(gin.Recovery())
	r.Use(cors())
	r.Use(secure.New(secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))
	r.Use(requestLogger(logger))
	if s.metrics != nil {
		r.Use(requestMetrics(s.metrics))
	}
	s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	r := s.engine
	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "Route not found")
	})

	api := r.Group("/api")
	api.GET("/health", s.health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	admin := s.requireAdmin()
	api.POST("/upload", admin, s.uploadFiles)

	pass := func(c *gin.Context) { c.Next() }
	for _, c := range domain.Collections {
		group := api.Group("/" + string(c))
		read, create := pass, admin
		switch c {
		case domain.CollectionUsers:
			read = admin
		case domain.CollectionContacts:
			// Contact form submissions are public; reading them is not.
			read, create = admin, pass
		}
		group.GET("", read, s.list(c))
		group.GET("/:id", read, s.get(c))
		if schema, _ := domain.SchemaFor(c); schema.SlugFrom != "" {
			group.GET("/slug/:slug", s.getBySlug(c))
		}
		group.POST("", create, s.create(c))
		group.PATCH("/:id", admin, s.update(c))
		group.PUT("/:id", admin, s.update(c))
		group.DELETE("/:id", admin, s.remove(c))
	}
	api.POST("/navigation/:id/children", admin, s.addNavigationChild)

	if s.jobs != nil {
		sync := api.Group("/admin", s.requireAdmin())
		sync.POST("/sync", s.enqueueSync)
		sync.GET("/sync", s.listExports)
		sync.GET("/sync/:id", s.getSync)
		sync.POST("/import", s.importExport)
	}

	if s.assets != nil {
		for _, mount := range []string{"/images", "/uploads"} {
			r.GET(mount+"/*name", s.serveAsset)
			r.HEAD(mount+"/*name", s.serveAsset)
		}
	}
}
