package analyzer

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go-threatnet/pkg/artifacts"
	"go-threatnet/pkg/assistant"
	"go-threatnet/pkg/catalog"
	"go-threatnet/pkg/corpus"
	"go-threatnet/pkg/features"
	"go-threatnet/pkg/forest"
	"go-threatnet/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreKeywords(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    models.AttackType
		matches int
	}{
		{"no match", "hi", models.Legitimate, 0},
		{"ransomware", "Pay the RANSOM in Bitcoin", models.Ransomware, 2},
		{"overlapping patterns both count", "packet flood incoming", models.DDoS, 2},
		{"tie keeps earlier category", "click here, it's free", models.Phishing, 1},
		{"tie between later categories", "free botnet", models.Spam, 1},
		{"strictly more wins", "click here for a free lottery winner prize", models.Spam, 3},
		{"sql", "1' OR 1=1; DROP TABLE users", models.SQLInjection, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreKeywords(tt.text)
			assert.Equal(t, tt.want, got.Attack)
			assert.Len(t, got.Matches, tt.matches)
		})
	}
}

func TestHeuristicFormulas(t *testing.T) {
	assert.InDelta(t, 0.8, heuristicConfidence(1), 1e-9)
	assert.InDelta(t, 0.9, heuristicConfidence(2), 1e-9)
	assert.Equal(t, 0.99, heuristicConfidence(3))
	assert.Equal(t, 0.99, heuristicConfidence(10))
	assert.Equal(t, 60, heuristicSpamScore(1))
	assert.Equal(t, 80, heuristicSpamScore(2))
	assert.Equal(t, 100, heuristicSpamScore(3))
	assert.Equal(t, 100, heuristicSpamScore(9))
}

var records = []models.ThreatRecord{
	{ReportID: "RPT-10000", ThreatText: "Firewall blocked potential DDoS packet flood on port 4444.", AttackType: models.DDoS},
	{ReportID: "RPT-10001", ThreatText: "System scan revealed Malware payload in file 'update_1234.exe'.", AttackType: models.Malware},
}

func TestDatasetSignal(t *testing.T) {
	idx := corpus.NewIndex(records)

	t.Run("exact match", func(t *testing.T) {
		d := datasetSignal(idx, "FWD: system scan revealed malware payload in file 'update_1234.exe'. please advise")
		assert.Equal(t, models.MethodExactMatch, d.Method)
		assert.Equal(t, models.Malware, d.ThreatType)
		assert.Equal(t, 0.99, d.Confidence)
		assert.Equal(t, 95, d.SpamScore)
		assert.Equal(t, "RPT-10001", d.ReportID)
		assert.Contains(t, d.Explanation, "RPT-10001")
		assert.Equal(t, catalog.Lookup("Malware"), d.Mitigation)
	})

	t.Run("heuristic", func(t *testing.T) {
		d := datasetSignal(idx, "send bitcoin or the ransom doubles")
		assert.Equal(t, models.MethodHeuristic, d.Method)
		assert.Equal(t, models.Ransomware, d.ThreatType)
		assert.GreaterOrEqual(t, d.SpamScore, 60)
		assert.InDelta(t, 0.9, d.Confidence, 1e-9)
		assert.ElementsMatch(t, []string{"bitcoin", "ransom"}, d.MatchedPatterns)
		assert.Empty(t, d.ReportID)
	})

	t.Run("nothing found", func(t *testing.T) {
		d := datasetSignal(idx, "hi")
		assert.Equal(t, models.Legitimate, d.ThreatType)
		assert.Zero(t, d.Confidence)
		assert.Zero(t, d.SpamScore)
		assert.Equal(t, models.MethodNone, d.Method)
		assert.Equal(t, "No matching threat signature found in dataset.", d.Explanation)
	})

	t.Run("no corpus", func(t *testing.T) {
		d := datasetSignal(nil, "Firewall blocked potential DDoS packet flood on port 4444.")
		assert.Equal(t, models.MethodHeuristic, d.Method)
		assert.Equal(t, models.DDoS, d.ThreatType)
	})
}

func testBundle(t *testing.T) *artifacts.Bundle {
	t.Helper()
	texts := []string{
		"ransom bitcoin wallet decrypt files",
		"bitcoin payment required encrypted files",
		"verify account login suspended",
		"confirm identity urgent account login",
	}
	labels := []string{"Ransomware", "Ransomware", "Phishing", "Phishing"}
	space, err := features.Fit(texts, 0)
	require.NoError(t, err)
	model, err := forest.Train(space.TransformAll(texts), labels, forest.Params{Trees: 20, Seed: 42})
	require.NoError(t, err)
	return &artifacts.Bundle{Space: space, Model: model}
}

type fakeAssistant struct {
	result *models.AIResult
	err    error
	hang   bool
	calls  int
	mu     sync.Mutex
}

func (f *fakeAssistant) Analyze(ctx context.Context, text, messageType string) (*models.AIResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.hang {
		// 忽略 ctx，模拟不响应的上游
		time.Sleep(2 * time.Second)
	}
	return f.result, f.err
}

type fakeIndicators struct{}

func (fakeIndicators) Extract(text string) []models.Indicator {
	return []models.Indicator{{IP: "203.0.113.9"}}
}

type recorded struct {
	mu        sync.Mutex
	responses []models.AnalysisResponse
	texts     []string
}

func (r *recorded) RecordAnalysis(_ context.Context, resp models.AnalysisResponse, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, resp)
	return nil
}

func (r *recorded) Notify(_ context.Context, text string, _ models.AnalysisResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return errors.New("webhook down")
}

func TestAnalyze_OnlyDatasetSignal(t *testing.T) {
	svc := NewService(Context{Corpus: corpus.NewIndex(records)})
	assert.False(t, svc.ModelLoaded())
	assert.False(t, svc.AssistantEnabled())
	assert.Equal(t, 2, svc.CorpusRecords())

	resp := svc.Analyze(context.Background(), models.AnalysisRequest{Text: "hi"})
	require.NotNil(t, resp.DatasetResult)
	assert.Equal(t, models.Legitimate, resp.DatasetResult.ThreatType)
	assert.Nil(t, resp.MLResult)
	assert.Nil(t, resp.AIResult)
	assert.False(t, resp.ModelLoaded)
	assert.Equal(t, catalog.Path("Legitimate"), resp.AttackPath)
}

func TestAnalyze_AllSignals(t *testing.T) {
	ai := &fakeAssistant{result: &models.AIResult{
		AnalysisResult: models.AnalysisResult{ThreatType: models.Ransomware, Confidence: 0.95, Method: models.MethodAIAssisted},
		SpamScore:      90,
	}}
	rec := &recorded{}
	svc := NewService(Context{
		Corpus:     corpus.NewIndex(records),
		Bundle:     testBundle(t),
		Assistant:  ai,
		Indicators: fakeIndicators{},
	}, WithRecorder(rec), WithNotifier(rec))

	resp := svc.Analyze(context.Background(), models.AnalysisRequest{Text: "your files are encrypted, send bitcoin to decrypt"})
	require.NotNil(t, resp.DatasetResult)
	require.NotNil(t, resp.MLResult)
	require.NotNil(t, resp.AIResult)
	assert.True(t, resp.ModelLoaded)

	assert.Equal(t, models.Ransomware, resp.DatasetResult.ThreatType)
	assert.Equal(t, models.MethodModel, resp.MLResult.Method)
	var sum float64
	for _, p := range resp.MLResult.Probabilities {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, resp.MLResult.Probabilities[string(resp.MLResult.ThreatType)], resp.MLResult.Confidence)
	assert.Equal(t, catalog.Path(string(resp.MLResult.ThreatType)), resp.AttackPath)
	assert.Equal(t, 90, resp.AIResult.SpamScore)
	assert.Len(t, resp.Indicators, 1)

	// 遥测和告警各调用一次，告警失败不影响响应
	svc.Wait()
	assert.Len(t, rec.responses, 1)
	assert.Equal(t, []string{"your files are encrypted, send bitcoin to decrypt"}, rec.texts)
}

type blockingNotifier struct {
	release chan struct{}
	done    chan string
}

func (b *blockingNotifier) Notify(ctx context.Context, text string, _ models.AnalysisResponse) error {
	<-b.release
	b.done <- text
	return ctx.Err()
}

func TestAnalyze_SlowNotifierDoesNotBlockResponse(t *testing.T) {
	n := &blockingNotifier{release: make(chan struct{}), done: make(chan string, 1)}
	svc := NewService(Context{Corpus: corpus.NewIndex(records)}, WithNotifier(n))

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	resp := svc.Analyze(ctx, models.AnalysisRequest{Text: "send bitcoin or the ransom doubles"})
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, models.Ransomware, resp.DatasetResult.ThreatType)

	// 请求结束后告警仍然继续发送
	cancel()
	close(n.release)
	svc.Wait()
	assert.Equal(t, "send bitcoin or the ransom doubles", <-n.done)
}

func TestAnalyze_EmptyTextDegrades(t *testing.T) {
	ai := &fakeAssistant{result: &models.AIResult{}}
	svc := NewService(Context{Corpus: corpus.NewIndex(records), Bundle: testBundle(t), Assistant: ai})

	for _, text := range []string{"", "   \n\t"} {
		resp := svc.Analyze(context.Background(), models.AnalysisRequest{Text: text})
		require.NotNil(t, resp.DatasetResult)
		assert.Equal(t, models.Legitimate, resp.DatasetResult.ThreatType)
		assert.Zero(t, resp.DatasetResult.Confidence)
		require.NotNil(t, resp.MLResult)
		assert.Nil(t, resp.AIResult)
	}
	assert.Zero(t, ai.calls)
}

func TestDatasetSignal_GeneratedCorpusCitesOwnRecord(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		generated := corpus.NewGenerator(rand.New(rand.NewSource(seed))).Generate(corpus.DefaultSize)
		idx := corpus.NewIndex(generated)
		for _, r := range generated {
			d := datasetSignal(idx, r.ThreatText)
			require.Equal(t, models.MethodExactMatch, d.Method, "seed %d: %q", seed, r.ThreatText)
			require.Equal(t, r.ReportID, d.ReportID, "seed %d: %q", seed, r.ThreatText)
			assert.Equal(t, r.AttackType, d.ThreatType)
		}
	}
}

func TestAnalyze_AssistantFailuresOmitSignal(t *testing.T) {
	tests := []struct {
		name string
		ai   *fakeAssistant
	}{
		{"error", &fakeAssistant{err: errors.New("502 bad gateway")}},
		{"unparseable", &fakeAssistant{err: assistant.ErrNoJSON}},
		{"nil result", &fakeAssistant{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(Context{Assistant: tt.ai})
			resp := svc.Analyze(context.Background(), models.AnalysisRequest{Text: "verify account now"})
			assert.Nil(t, resp.AIResult)
			require.NotNil(t, resp.DatasetResult)
			assert.Equal(t, models.Phishing, resp.DatasetResult.ThreatType)
			assert.Equal(t, 1, tt.ai.calls)
		})
	}
}

func TestAnalyze_AssistantTimeout(t *testing.T) {
	svc := NewService(Context{
		Assistant:        &fakeAssistant{hang: true, result: &models.AIResult{}},
		AssistantTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	resp := svc.Analyze(context.Background(), models.AnalysisRequest{Text: "hello"})
	assert.Less(t, time.Since(start), time.Second)
	assert.Nil(t, resp.AIResult)
	require.NotNil(t, resp.DatasetResult)
}

func TestAnalyze_MessageTypeDefault(t *testing.T) {
	ai := &captureAssistant{}
	svc := NewService(Context{Assistant: ai})
	svc.Analyze(context.Background(), models.AnalysisRequest{Text: "hi"})
	assert.Equal(t, "email", ai.messageType)
}

type captureAssistant struct {
	messageType string
}

func (c *captureAssistant) Analyze(_ context.Context, _ string, messageType string) (*models.AIResult, error) {
	c.messageType = messageType
	return nil, assistant.ErrInvalidReply
}

func TestAnalyze_Concurrent(t *testing.T) {
	svc := NewService(Context{Corpus: corpus.NewIndex(records), Bundle: testBundle(t)})
	inputs := []string{"hi", "Firewall blocked potential DDoS packet flood on port 4444.", "verify account", "bitcoin ransom"}

	want := make([]models.AnalysisResponse, len(inputs))
	for i, in := range inputs {
		want[i] = svc.Analyze(context.Background(), models.AnalysisRequest{Text: in})
	}

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		for i, in := range inputs {
			wg.Add(1)
			go func(i int, in string) {
				defer wg.Done()
				got := svc.Analyze(context.Background(), models.AnalysisRequest{Text: in})
				assert.Equal(t, want[i], got)
			}(i, in)
		}
	}
	wg.Wait()
}

func TestAbsentReason(t *testing.T) {
	assert.Equal(t, "timeout", absentReason(context.DeadlineExceeded))
	assert.Equal(t, "canceled", absentReason(context.Canceled))
	assert.Equal(t, "unparseable", absentReason(assistant.ErrInvalidReply))
	assert.Equal(t, "error", absentReason(errors.New("boom")))
}
