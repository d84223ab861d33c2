// Package api exposes the analysis service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"go-threatnet/pkg/logger"
	"go-threatnet/pkg/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 1 << 20

// Analyzer HTTP 层需要的分析能力
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) models.AnalysisResponse
	ModelLoaded() bool
	AssistantEnabled() bool
	CorpusRecords() int
}

type Server struct {
	r        *chi.Mux
	analyzer Analyzer
	now      func() time.Time
}

func NewServer(analyzer Analyzer) *Server {
	s := &Server{r: chi.NewRouter(), analyzer: analyzer, now: time.Now}

	s.r.Use(middleware.RequestID)
	s.r.Use(middleware.RealIP)
	s.r.Use(requestLogger)
	s.r.Use(middleware.Recoverer)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.Get("/", s.getRoot)
	s.r.Get("/healthz", s.getHealth)
	s.r.Handle("/metrics", promhttp.Handler())

	s.r.Post("/analyze", s.postAnalyze)
	s.r.Post("/report", s.postReport)
	s.r.Get("/attack-path/{type}", s.getAttackPath)
}

func (s *Server) Handler() http.Handler { return s.r }

// requestLogger 用 zap 记录每个请求
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Log.Infow("http请求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
