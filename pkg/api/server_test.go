package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-threatnet/pkg/analyzer"
	"go-threatnet/pkg/catalog"
	"go-threatnet/pkg/corpus"
	"go-threatnet/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnalyzer struct {
	got []models.AnalysisRequest
}

func (s *stubAnalyzer) Analyze(_ context.Context, req models.AnalysisRequest) models.AnalysisResponse {
	s.got = append(s.got, req)
	return models.AnalysisResponse{
		DatasetResult: &models.DatasetResult{
			AnalysisResult: models.AnalysisResult{
				ThreatType: models.Phishing,
				Confidence: 0.8,
				Method:     models.MethodHeuristic,
				Mitigation: catalog.Lookup("Phishing"),
			},
			SpamScore: 60,
		},
		AttackPath: catalog.Path("Phishing"),
	}
}

func (s *stubAnalyzer) ModelLoaded() bool      { return false }
func (s *stubAnalyzer) AssistantEnabled() bool { return true }
func (s *stubAnalyzer) CorpusRecords() int     { return 500 }

func newTestServer() (*Server, *stubAnalyzer) {
	an := &stubAnalyzer{}
	s := NewServer(an)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s, an
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRoot(t *testing.T) {
	s, _ := newTestServer()
	rec := do(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "is Running")
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer()
	rec := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, healthBody{Status: "ok", ModelLoaded: false, CorpusRecords: 500, AssistantEnabled: true}, body)
}

func TestAnalyze(t *testing.T) {
	s, an := newTestServer()
	rec := do(t, s, http.MethodPost, "/analyze", `{"text":"verify your account"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp models.AnalysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.DatasetResult)
	assert.Equal(t, models.Phishing, resp.DatasetResult.ThreatType)
	assert.Nil(t, resp.MLResult)
	assert.Nil(t, resp.AIResult)

	require.Len(t, an.got, 1)
	assert.Equal(t, "email", an.got[0].MessageType)
}

func TestAnalyze_BadRequests(t *testing.T) {
	s, an := newTestServer()
	for _, body := range []string{``, `not json`, `{"text":`, `["text"]`} {
		rec := do(t, s, http.MethodPost, "/analyze", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), `"error"`, body)
	}
	assert.Empty(t, an.got)
}

func TestAnalyze_BodyTooLarge(t *testing.T) {
	s, _ := newTestServer()
	body := `{"text":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec := do(t, s, http.MethodPost, "/analyze", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReport(t *testing.T) {
	s, _ := newTestServer()
	rec := do(t, s, http.MethodPost, "/report", `{"text":"click this link","message_type":"sms"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="CTI_Report_1700000000.txt"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))

	text := rec.Body.String()
	assert.Contains(t, text, "Prediction:  Phishing")
	assert.Contains(t, text, "click this link")
}

func TestAnalyze_EmptyTextDegrades(t *testing.T) {
	s := NewServer(analyzer.NewService(analyzer.Context{Corpus: corpus.NewIndex(nil)}))
	for _, body := range []string{`{"text":""}`, `{"text":"  \n\t "}`, `{}`} {
		rec := do(t, s, http.MethodPost, "/analyze", body)
		require.Equal(t, http.StatusOK, rec.Code, body)

		var resp models.AnalysisResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.DatasetResult)
		assert.Equal(t, models.Legitimate, resp.DatasetResult.ThreatType)
		assert.Zero(t, resp.DatasetResult.Confidence)
	}
}

func TestReport_EmptyText(t *testing.T) {
	s := NewServer(analyzer.NewService(analyzer.Context{Corpus: corpus.NewIndex(nil)}))
	rec := do(t, s, http.MethodPost, "/report", `{"text":" "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Prediction:  Legitimate")
	assert.Contains(t, rec.Body.String(), "Confidence:  0.00%")
}

func TestAttackPath(t *testing.T) {
	s, _ := newTestServer()
	rec := do(t, s, http.MethodGet, "/attack-path/SQL%20Injection", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var path models.AttackPath
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &path))
	assert.Equal(t, catalog.Path("SQL Injection"), path)

	rec = do(t, s, http.MethodGet, "/attack-path/Nonsense", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &path))
	assert.Equal(t, "Unknown Source", path.Nodes[0].Label)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer()
	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
