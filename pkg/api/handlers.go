package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go-threatnet/pkg/catalog"
	"go-threatnet/pkg/logger"
	"go-threatnet/pkg/models"
	"go-threatnet/pkg/report"

	"github.com/go-chi/chi/v5"
)

type errorBody struct {
	Error string `json:"error"`
}

type healthBody struct {
	Status           string `json:"status"`
	ModelLoaded      bool   `json:"model_loaded"`
	CorpusRecords    int    `json:"corpus_records"`
	AssistantEnabled bool   `json:"assistant_enabled"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Errorf("写入响应失败: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// decodeRequest 只拒绝无法解析的请求体，空文本交给分析器降级处理
func decodeRequest(w http.ResponseWriter, r *http.Request) (models.AnalysisRequest, error) {
	var req models.AnalysisRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	return req.WithDefaults(), nil
}

func (s *Server) getRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cyber CTI API with Dataset & Groq Support is Running"})
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthBody{
		Status:           "ok",
		ModelLoaded:      s.analyzer.ModelLoaded(),
		CorpusRecords:    s.analyzer.CorpusRecords(),
		AssistantEnabled: s.analyzer.AssistantEnabled(),
	})
}

func (s *Server) postAnalyze(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.analyzer.Analyze(r.Context(), req))
}

// postReport 分析后以附件形式返回纯文本报告
func (s *Server) postReport(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp := s.analyzer.Analyze(r.Context(), req)
	rep := report.New(resp, req.Text, s.now())

	var buf bytes.Buffer
	if err := rep.Render(&buf); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, rep.Filename()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) getAttackPath(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "type")
	attackType, err := url.PathUnescape(raw)
	if err != nil {
		attackType = raw
	}
	writeJSON(w, http.StatusOK, catalog.Path(attackType))
}
