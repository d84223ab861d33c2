package analyzer

import (
	"fmt"
	"math"
	"strings"

	"go-threatnet/pkg/models"
)

// keywordRule 单个类别的关键词表
type keywordRule struct {
	attack   models.AttackType
	patterns []string
}

// keywordRules 顺序即并列时的优先级：靠后的类别只有在命中数严格更多时才会取代当前最优
var keywordRules = []keywordRule{
	{models.Phishing, []string{
		"verify account", "confirm identity", "urgent action", "click here", "suspended account",
		"unusual activity", "verify now", "confirm password", "account locked", "login attempt",
		"security alert", "bank account", "update information",
	}},
	{models.Malware, []string{
		"download attachment", "open file", "install", ".exe", "virus", "infected",
		"enable macros", ".zip", ".rar", "malicious", "trojan",
	}},
	{models.Ransomware, []string{
		"bitcoin", "payment required", "locked files", "decrypt", "ransom", "encrypted",
		"wallet", "btc", "pay now",
	}},
	{models.Spam, []string{
		"win prize", "congratulations", "free", "limited offer", "act now", "special promotion",
		"winner", "lottery", "inheritance", "100% free", "buy now",
	}},
	{models.SQLInjection, []string{
		"drop table", "select *", "union select", "1=1", "or 1=1", "--", "delete from",
		"insert into", "update set",
	}},
	{models.DDoS, []string{
		"flood", "overwhelm", "traffic spike", "denial of service", "packet flood", "botnet",
	}},
}

// Score 启发式打分结果
type Score struct {
	Attack  models.AttackType
	Matches []string
}

// scoreKeywords 统计每个类别命中的关键词（小写子串），返回命中最多的类别
// 没有任何命中时返回 Legitimate
func scoreKeywords(text string) Score {
	in := strings.ToLower(text)
	best := Score{Attack: models.Legitimate}
	for _, rule := range keywordRules {
		var matches []string
		for _, p := range rule.patterns {
			if strings.Contains(in, p) {
				matches = append(matches, p)
			}
		}
		if len(matches) > len(best.Matches) {
			best = Score{Attack: rule.attack, Matches: matches}
		}
	}
	return best
}

func heuristicConfidence(m int) float64 {
	return math.Min(0.99, 0.7+0.1*float64(m))
}

func heuristicSpamScore(m int) int {
	if s := 40 + 20*m; s < 100 {
		return s
	}
	return 100
}

func heuristicExplanation(s Score) string {
	return fmt.Sprintf("Detected suspicious patterns commonly found in %s: %s", s.Attack, strings.Join(s.Matches, ", "))
}
