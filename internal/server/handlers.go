package server

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/peer-weaver/internal/generator"
	"github.com/alvmarrod/peer-weaver/internal/registry"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string `json:"status"`
}

// RegisterRequest is the body of POST /nodes
type RegisterRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "OK"})
}

func (s *Server) handleMetadata(c *gin.Context) {
	md := s.opts.Metadata
	md.Services = s.services()
	c.JSON(http.StatusOK, md)
}

func (s *Server) handleListNodes(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Registry.List())
}

// handlePeers reports the registry with its registration and check times
func (s *Server) handlePeers(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Registry.Peers())
}

func (s *Server) handleRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	err := s.opts.Registry.Register(c.Request.Context(), req.URL)
	switch {
	case err == nil:
		s.gate.Invalidate()
		c.JSON(http.StatusOK, "Registered")
	case errors.Is(err, registry.ErrInvalidURL), errors.Is(err, registry.ErrUnhealthy):
		logrus.Infof("nodes: rejected registration of %q: %v", req.URL, err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		logrus.Errorf("nodes: registration of %q failed: %v", req.URL, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func (s *Server) handleProfile(c *gin.Context) {
	if s.opts.ProfileImage == "" {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no profile image"})
		return
	}
	if _, err := os.Stat(s.opts.ProfileImage); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no profile image"})
		return
	}
	c.File(s.opts.ProfileImage)
}

func (s *Server) handleDocument(c *gin.Context) {
	art, ok := s.regenerate(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/vnd.graphviz; charset=utf-8", []byte(art.Document))
}

func (s *Server) handleImage(c *gin.Context) {
	art, ok := s.regenerate(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, imageContentType(art.Format), art.Image)
}

// regenerate answers through the gate and writes the failure response itself
func (s *Server) regenerate(c *gin.Context) (*generator.Artifact, bool) {
	art, outcome, err := s.generate()
	c.Header(OutcomeHeader, outcome.String())
	if err != nil {
		logrus.Errorf("network: generation failed (%s): %v", outcome, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return nil, false
	}
	return art, true
}

func (s *Server) handleSnapshot(c *gin.Context) {
	if s.opts.Snapshots == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no crawl snapshot"})
		return
	}
	run, err := s.opts.Snapshots.LatestRun()
	if err != nil {
		logrus.Errorf("network: failed to load snapshot: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no crawl snapshot"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func imageContentType(format string) string {
	switch format {
	case "svg":
		return "image/svg+xml"
	case "png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
