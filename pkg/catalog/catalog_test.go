package catalog

import (
	"testing"

	"go-threatnet/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_KnownCategories(t *testing.T) {
	for _, at := range models.AttackTypes {
		entry := Lookup(string(at))
		assert.NotEmpty(t, entry.Caution, at)
		assert.NotEmpty(t, entry.Precautions, at)
		assert.NotEmpty(t, entry.Solution, at)
		assert.NotEqual(t, "Unknown Threat Pattern", entry.Caution, at)
	}
}

func TestLookup_Fallback(t *testing.T) {
	tests := []string{"", "Spam", "Legitimate", "zero-day", "   ", "\x00"}
	for _, in := range tests {
		entry := Lookup(in)
		assert.Equal(t, "Unknown Threat Pattern", entry.Caution)
		assert.Equal(t, []string{"Investigate manually"}, entry.Precautions)
		assert.Equal(t, "Isolate and Analyze", entry.Solution)
	}
}

func TestLookup_SpellingVariants(t *testing.T) {
	want := Lookup("SQL Injection")
	assert.Equal(t, want, Lookup("SQLInjection"))
	assert.Equal(t, want, Lookup("sql injection"))
	assert.Equal(t, Lookup("DDoS"), Lookup("ddos"))
}

func TestLookup_ReturnsCopy(t *testing.T) {
	entry := Lookup("Phishing")
	entry.Precautions[0] = "mutated"
	assert.NotEqual(t, "mutated", Lookup("Phishing").Precautions[0])
}

func TestPath(t *testing.T) {
	path := Path("Ransomware")
	require.Len(t, path.Nodes, 4)
	require.Len(t, path.Edges, 3)

	assert.Equal(t, "Malicious Payload", path.Nodes[0].Label)
	assert.Equal(t, "RDP / Phishing", path.Nodes[1].Label)
	assert.Equal(t, "Ransomware", path.Nodes[2].Label)
	assert.Equal(t, "Data Encryption", path.Nodes[3].Label)
	for i, n := range path.Nodes {
		assert.Equal(t, i, n.Layer)
	}
	assert.Equal(t, []string{"Exploits", "Facilitates", "Causes"},
		[]string{path.Edges[0].Label, path.Edges[1].Label, path.Edges[2].Label})
}

func TestPath_Unknown(t *testing.T) {
	path := Path("Spam")
	assert.Equal(t, "Unknown Source", path.Nodes[0].Label)
	assert.Equal(t, "Spam", path.Nodes[2].Label)
	assert.Equal(t, "Security Breach", path.Nodes[3].Label)
}
