package analyzer

import (
	"fmt"

	"go-threatnet/pkg/catalog"
	"go-threatnet/pkg/corpus"
	"go-threatnet/pkg/models"
)

const (
	exactMatchConfidence = 0.99
	exactMatchSpamScore  = 95
)

// datasetSignal 两段式语料信号：先精确匹配语料文本，没有命中再走关键词打分
// 总是返回结果，未命中时为 Legitimate / 置信度 0
func datasetSignal(idx *corpus.Index, text string) models.DatasetResult {
	if rec, matched, ok := idx.FindContained(text); ok {
		return models.DatasetResult{
			AnalysisResult: models.AnalysisResult{
				ThreatType:  rec.AttackType,
				Confidence:  exactMatchConfidence,
				Method:      models.MethodExactMatch,
				Explanation: fmt.Sprintf("Matched known threat signature from dataset Report ID: %s", rec.ReportID),
				Mitigation:  catalog.Lookup(string(rec.AttackType)),
			},
			SpamScore:       exactMatchSpamScore,
			MatchedPatterns: []string{matched},
			ReportID:        rec.ReportID,
		}
	}

	score := scoreKeywords(text)
	if len(score.Matches) == 0 {
		return noMatch()
	}

	m := len(score.Matches)
	return models.DatasetResult{
		AnalysisResult: models.AnalysisResult{
			ThreatType:  score.Attack,
			Confidence:  heuristicConfidence(m),
			Method:      models.MethodHeuristic,
			Explanation: heuristicExplanation(score),
			Mitigation:  catalog.Lookup(string(score.Attack)),
		},
		SpamScore:       heuristicSpamScore(m),
		MatchedPatterns: score.Matches,
	}
}

func noMatch() models.DatasetResult {
	return models.DatasetResult{
		AnalysisResult: models.AnalysisResult{
			ThreatType:  models.Legitimate,
			Confidence:  0,
			Method:      models.MethodNone,
			Explanation: "No matching threat signature found in dataset.",
			Mitigation:  catalog.Lookup(string(models.Legitimate)),
		},
	}
}
