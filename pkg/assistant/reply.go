package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go-threatnet/pkg/catalog"
	"go-threatnet/pkg/models"
)

var (
	ErrNoJSON       = errors.New("assistant: reply contains no json object")
	ErrInvalidReply = errors.New("assistant: reply does not match the expected shape")
)

// 第一个 { 到最后一个 } 之间的内容
var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

type reply struct {
	ThreatType  string            `json:"threat_type"`
	Confidence  float64           `json:"confidence"`
	SpamScore   float64           `json:"spam_score"`
	Explanation string            `json:"explanation"`
	Caution     string            `json:"caution"`
	Precautions []string          `json:"precautions"`
	Solution    string            `json:"solution"`
	AttackFlow  models.AttackFlow `json:"attack_flow"`
}

// ParseReply 从模型回复中取出 JSON 对象并校验
// threat_type 必须属于已知分类，confidence 截断到 [0,1]，spam_score 截断到 [0,100]
func ParseReply(content string) (*models.AIResult, error) {
	raw := jsonObject.FindString(content)
	if raw == "" {
		return nil, ErrNoJSON
	}

	var r reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}

	attack, ok := models.ParseAttackType(r.ThreatType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown threat_type %q", ErrInvalidReply, r.ThreatType)
	}

	mitigation := models.MitigationEntry{
		Caution:     strings.TrimSpace(r.Caution),
		Precautions: r.Precautions,
		Solution:    strings.TrimSpace(r.Solution),
	}
	if mitigation.Caution == "" && mitigation.Solution == "" && len(mitigation.Precautions) == 0 {
		mitigation = catalog.Lookup(string(attack))
	}

	return &models.AIResult{
		AnalysisResult: models.AnalysisResult{
			ThreatType:  attack,
			Confidence:  clamp(r.Confidence, 0, 1),
			Method:      models.MethodAIAssisted,
			Explanation: r.Explanation,
			Mitigation:  mitigation,
		},
		SpamScore:  int(math.Round(clamp(r.SpamScore, 0, 100))),
		AttackFlow: r.AttackFlow,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
