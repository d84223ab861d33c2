// Package report renders an analysis into a downloadable incident report.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go-threatnet/pkg/models"
)

// Report 导出报告的内容
type Report struct {
	GeneratedAt  time.Time
	Prediction   models.AttackType
	Confidence   float64
	Method       models.Method
	OriginalText string
	Caution      string
	Precautions  []string
	Solution     string
	AttackPath   models.AttackPath
	Indicators   []models.Indicator
}

// New 以模型信号为主，没有模型时取语料信号
func New(resp models.AnalysisResponse, text string, now time.Time) Report {
	primary := resp.Primary()
	return Report{
		GeneratedAt:  now,
		Prediction:   primary.ThreatType,
		Confidence:   primary.Confidence,
		Method:       primary.Method,
		OriginalText: text,
		Caution:      primary.Mitigation.Caution,
		Precautions:  primary.Mitigation.Precautions,
		Solution:     primary.Mitigation.Solution,
		AttackPath:   resp.AttackPath,
		Indicators:   resp.Indicators,
	}
}

// Filename 下载文件名
func (r Report) Filename() string {
	return fmt.Sprintf("CTI_Report_%d.txt", r.GeneratedAt.Unix())
}

// Render 输出纯文本报告
func (r Report) Render(w io.Writer) error {
	var sb strings.Builder
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(&sb, rule)
	fmt.Fprintln(&sb, "CYBER THREAT INTELLIGENCE REPORT")
	fmt.Fprintln(&sb, rule)
	fmt.Fprintf(&sb, "Generated:   %s\n", r.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Prediction:  %s\n", r.Prediction)
	fmt.Fprintf(&sb, "Confidence:  %.2f%%\n", r.Confidence*100)
	fmt.Fprintf(&sb, "Method:      %s\n", r.Method)
	fmt.Fprintln(&sb)

	fmt.Fprintln(&sb, "Original Text:")
	fmt.Fprintln(&sb, r.OriginalText)
	fmt.Fprintln(&sb)

	fmt.Fprintln(&sb, "Caution:")
	fmt.Fprintln(&sb, r.Caution)
	fmt.Fprintln(&sb)

	fmt.Fprintln(&sb, "Precautions:")
	for i, p := range r.Precautions {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, p)
	}
	fmt.Fprintln(&sb)

	fmt.Fprintln(&sb, "Solution:")
	fmt.Fprintln(&sb, r.Solution)

	if len(r.AttackPath.Edges) > 0 {
		fmt.Fprintln(&sb)
		fmt.Fprintln(&sb, "Attack Path:")
		for _, e := range r.AttackPath.Edges {
			fmt.Fprintf(&sb, "  %s --%s--> %s\n", e.From, e.Label, e.To)
		}
	}

	if len(r.Indicators) > 0 {
		fmt.Fprintln(&sb)
		fmt.Fprintln(&sb, "Indicators:")
		for _, ind := range r.Indicators {
			line := "  " + ind.IP
			if ind.Country != "" {
				line += " [" + ind.Country + "]"
			}
			if ind.ASN != 0 {
				line += fmt.Sprintf(" AS%d %s", ind.ASN, ind.Organization)
			}
			fmt.Fprintln(&sb, line)
		}
	}
	fmt.Fprintln(&sb, rule)

	_, err := io.WriteString(w, sb.String())
	return err
}
