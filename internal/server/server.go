package server

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/peer-weaver/internal/gate"
	"github.com/alvmarrod/peer-weaver/internal/generator"
	"github.com/alvmarrod/peer-weaver/internal/metrics"
	"github.com/alvmarrod/peer-weaver/internal/registry"
	"github.com/alvmarrod/peer-weaver/internal/storage"
)

// OutcomeHeader reports how the regeneration gate answered a graph request
const OutcomeHeader = "X-Graph-Outcome"

// Registrar is the peer registry as seen by the HTTP surface
type Registrar interface {
	Register(ctx context.Context, url string) error
	List() []string
	Peers() []registry.Peer
}

// ArtifactGenerator produces a fresh network graph
type ArtifactGenerator interface {
	Generate(ctx context.Context) (*generator.Artifact, error)
}

// SnapshotReader loads the last stored crawl
type SnapshotReader interface {
	LatestRun() (*storage.Run, error)
}

// Metadata describes this node on GET /metadata
type Metadata struct {
	Name        string   `json:"name"`
	Owner       string   `json:"owner"`
	Description string   `json:"description"`
	Services    []string `json:"services"`
}

// Options wires a Server
type Options struct {
	Registry     Registrar
	Generator    ArtifactGenerator
	Snapshots    SnapshotReader      // optional
	Collectors   *metrics.Collectors // optional
	Metadata     Metadata
	ProfileImage string // optional
	ImagesDir    string // saved avatars; a relative dir is served under its own path
	Format       string
	MinInterval  time.Duration

	// BaseContext bounds generation runs; they outlive the request that
	// triggered them so queued callers can share the result.
	BaseContext context.Context
}

// Server is the node's HTTP surface
type Server struct {
	opts   Options
	gate   *gate.Gate[*generator.Artifact]
	engine *gin.Engine
}

// New creates the server and registers its routes
func New(opts Options) *Server {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Format == "" {
		opts.Format = "png"
	}

	s := &Server{
		opts: opts,
		gate: gate.New[*generator.Artifact](opts.MinInterval),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	s.routes(engine)
	s.engine = engine

	return s
}

// Handler returns the routed http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)
	r.GET("/metadata", s.handleMetadata)
	r.GET("/nodes", s.handleListNodes)
	r.POST("/nodes", s.handleRegister)
	r.GET("/peers", s.handlePeers)
	r.GET("/profile.png", s.handleProfile)
	r.GET("/network.dot", s.handleDocument)
	r.GET("/network.json", s.handleSnapshot)
	if s.opts.Format != "dot" && s.opts.Format != "json" {
		r.GET("/network."+s.opts.Format, s.handleImage)
	}
	if s.opts.Collectors != nil {
		r.GET("/metrics", gin.WrapH(s.opts.Collectors.Handler()))
	}
	if prefix, ok := imagesRoute(s.opts.ImagesDir); ok {
		r.Static(prefix, s.opts.ImagesDir)
	}
}

// imagesRoute maps a relative images dir to the URL path the graph links use
func imagesRoute(dir string) (string, bool) {
	if dir == "" || filepath.IsAbs(dir) {
		return "", false
	}
	clean := filepath.ToSlash(filepath.Clean(dir))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return "/" + clean, true
}

func (s *Server) services() []string {
	services := []string{"/health", "/metadata", "/nodes", "/peers", "/network.dot", "/network." + s.opts.Format, "/network.json"}
	if s.opts.ProfileImage != "" {
		services = append(services, "/profile.png")
	}
	if s.opts.Collectors != nil {
		services = append(services, "/metrics")
	}
	return services
}

// generate runs the generator through the gate
func (s *Server) generate() (*generator.Artifact, gate.Outcome, error) {
	return s.gate.Do(func() (*generator.Artifact, error) {
		return s.opts.Generator.Generate(s.opts.BaseContext)
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.Debugf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
