package main

import (
	"path/filepath"
	"testing"

	"go-threatnet/pkg/corpus"
	"go-threatnet/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequests_SingleText(t *testing.T) {
	reqs, err := buildRequests("", "claim your prize now", "sms", 0)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.NotEmpty(t, reqs[0].key)
	assert.Equal(t, models.AnalysisRequest{Text: "claim your prize now", MessageType: "sms"}, reqs[0].req)
}

func TestBuildRequests_FromCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.xlsx")
	records := []models.ThreatRecord{
		{ReportID: "RPT-10000", ThreatText: "first", AttackType: models.Malware, Severity: models.High, Source: models.SourceIDS},
		{ReportID: "RPT-10001", ThreatText: "second", AttackType: models.DDoS, Severity: models.Low, Source: models.SourceSIEM},
		{ReportID: "RPT-10002", ThreatText: "third", AttackType: models.Phishing, Severity: models.Medium, Source: models.SourceEmail},
	}
	require.NoError(t, corpus.WriteXLSX(path, records))

	reqs, err := buildRequests(path, "", "email", 2)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "RPT-10000", reqs[0].key)
	assert.Equal(t, "second", reqs[1].req.Text)
}

func TestBuildRequests_MissingCorpus(t *testing.T) {
	_, err := buildRequests(filepath.Join(t.TempDir(), "nope.xlsx"), "", "email", 0)
	assert.Error(t, err)
}
