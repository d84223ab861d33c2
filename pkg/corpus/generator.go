// Package corpus generates the labelled synthetic threat corpus and reads and
// writes it as a spreadsheet.
package corpus

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"go-threatnet/pkg/models"
)

// DefaultSize 默认语料条数
const DefaultSize = 500

var templates = []string{
	"Detected suspicious {attack} activity originating from IP {ip}. Target system: {target}.",
	"User reported {attack} attempt via {source}. Subject: 'Urgent Action Required'.",
	"Firewall blocked potential {attack} packet flood on port {port}.",
	"High severity {attack} signature matched in network traffic. Source: {source}.",
	"System scan revealed {attack} payload in file '{file}'.",
	"Anomalous traffic pattern suggestive of {attack} detected by {source}.",
	"Multiple failed login attempts followed by {attack} execution command.",
	"Encrypted traffic analysis indicates possible {attack} communication.",
	"Compromised credential usage linked to known {attack} campaign.",
	"{attack} alert triggered by heuristic analysis engine.",
}

// Generator 按模板生成语料，所有随机性来自同一个 rng
type Generator struct {
	rng *rand.Rand
}

func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// Generate 生成恰好 n 条 threat_text 互不相同的记录
func (g *Generator) Generate(n int) []models.ThreatRecord {
	if n <= 0 {
		return nil
	}

	seen := make(map[string]struct{}, n)
	records := make([]models.ThreatRecord, 0, n)

	// 先过采样一轮，按文本去重
	for i := 0; i < n; i++ {
		r := g.row()
		if _, dup := seen[r.ThreatText]; dup {
			continue
		}
		seen[r.ThreatText] = struct{}{}
		records = append(records, r)
	}

	// 去重后不足 n 条时用带噪声后缀的变体补齐
	for len(records) < n {
		attack := pick(g.rng, models.AttackTypes)
		text := g.text(attack, pick(g.rng, models.Sources)) + " (" + strconv.Itoa(g.rng.Intn(100)+1) + ")"
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		records = append(records, models.ThreatRecord{
			ThreatText: text,
			AttackType: attack,
			Severity:   pick(g.rng, models.Severities),
			Source:     pick(g.rng, models.Sources),
		})
	}

	records = records[:n]
	for i := range records {
		records[i].ReportID = ReportID(i)
	}
	return records
}

// ReportID 第 i 行的报告编号
func ReportID(i int) string {
	return fmt.Sprintf("RPT-%d", 10000+i)
}

func (g *Generator) row() models.ThreatRecord {
	attack := pick(g.rng, models.AttackTypes)
	severity := pick(g.rng, models.Severities)
	source := pick(g.rng, models.Sources)

	// 严重等级与攻击类型轻度相关
	if (attack == models.Ransomware || attack == models.DDoS) && g.rng.Float64() > 0.3 {
		severity = models.Critical
	}
	if attack == models.Phishing && g.rng.Float64() > 0.7 {
		severity = models.Medium
	}

	return models.ThreatRecord{
		ThreatText: g.text(attack, source),
		AttackType: attack,
		Severity:   severity,
		Source:     source,
	}
}

func (g *Generator) text(attack models.AttackType, source models.Source) string {
	ip := fmt.Sprintf("%d.%d.%d.%d", g.rng.Intn(255)+1, g.rng.Intn(256), g.rng.Intn(256), g.rng.Intn(256))
	port := strconv.Itoa(1024 + g.rng.Intn(65535-1024+1))
	target := fmt.Sprintf("Server-%d", 100+g.rng.Intn(900))
	file := fmt.Sprintf("update_%d.exe", 1000+g.rng.Intn(9000))

	tmpl := templates[g.rng.Intn(len(templates))]
	return strings.NewReplacer(
		"{attack}", string(attack),
		"{ip}", ip,
		"{port}", port,
		"{target}", target,
		"{file}", file,
		"{source}", string(source),
	).Replace(tmpl)
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.Intn(len(items))]
}
