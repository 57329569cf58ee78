// Package server serves an app root over HTTP during development: the build
// artifacts, the resources they index, a health check and the metrics.
package server

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/strvct"
)

// Server serves the files below an app root.
type Server struct {
	root   string
	engine *gin.Engine

	requests *prometheus.CounterVec
}

// New returns a server for the directory root. Metrics are registered on reg
// and exposed at /-/metrics.
func New(root string, reg *prometheus.Registry) *Server {
	s := &Server{
		root:   root,
		engine: gin.New(),
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "strvct",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Number of HTTP requests by status code.",
		}, []string{"code"}),
	}

	s.engine.Use(gin.Recovery(), s.logRequests)

	s.engine.GET("/-/healthz", s.health)
	s.engine.GET("/-/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	files := http.FileServer(http.Dir(root))
	s.engine.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.AbortWithStatus(http.StatusMethodNotAllowed)
			return
		}

		// artifacts change with every build, resources are verified by hash
		if isArtifact(c.Request.URL.Path) {
			c.Header("Cache-Control", "no-cache")
		}
		files.ServeHTTP(c.Writer, c.Request)
	})

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "root": s.root})
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()

	code := c.Writer.Status()
	s.requests.WithLabelValues(strconv.Itoa(code)).Inc()

	log.WithFields(log.Fields{
		"method":   c.Request.Method,
		"path":     c.Request.URL.Path,
		"status":   code,
		"bytes":    c.Writer.Size(),
		"duration": time.Since(start).Round(time.Microsecond),
	}).Debug("request")
}

func isArtifact(p string) bool {
	p = strings.TrimPrefix(path.Clean(p), "/")
	if path.Dir(p) != strvct.BuildDir {
		return false
	}
	return strings.HasPrefix(path.Base(p), "_")
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Infof("serving %v on %v", s.root, addr)

	select {
	case err := <-errCh:
		return errors.WithStack(err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}
