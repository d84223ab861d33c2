package models

import (
	"strings"
	"time"
)

// AttackType 攻击类别
type AttackType string

const (
	Phishing     AttackType = "Phishing"
	Malware      AttackType = "Malware"
	DDoS         AttackType = "DDoS"
	Ransomware   AttackType = "Ransomware"
	SQLInjection AttackType = "SQL Injection"

	// 以下两类只出现在启发式和大模型的分类体系中
	Spam       AttackType = "Spam"
	Legitimate AttackType = "Legitimate"
)

// AttackTypes 语料和模型使用的五个类别
var AttackTypes = []AttackType{Phishing, Malware, DDoS, Ransomware, SQLInjection}

var taxonomy = []AttackType{Phishing, Malware, DDoS, Ransomware, SQLInjection, Spam, Legitimate}

// ParseAttackType 宽松解析类别名，接受 "SQLInjection" 这类写法，大小写不敏感
func ParseAttackType(s string) (AttackType, bool) {
	key := normalize(s)
	for _, t := range taxonomy {
		if normalize(string(t)) == key {
			return t, true
		}
	}
	return AttackType(s), false
}

func normalize(s string) string {
	return strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(s)))
}

type Severity string

const (
	Low      Severity = "Low"
	Medium   Severity = "Medium"
	High     Severity = "High"
	Critical Severity = "Critical"
)

var Severities = []Severity{Low, Medium, High, Critical}

type Source string

const (
	SourceEmail      Source = "Email"
	SourceFirewall   Source = "Firewall"
	SourceIDS        Source = "IDS"
	SourceSIEM       Source = "SIEM"
	SourceUserReport Source = "User Report"
)

var Sources = []Source{SourceEmail, SourceFirewall, SourceIDS, SourceSIEM, SourceUserReport}

// ThreatRecord 语料中的一条记录，生成后不再修改
type ThreatRecord struct {
	ReportID   string     `json:"report_id"`
	ThreatText string     `json:"threat_text"`
	AttackType AttackType `json:"attack_type"`
	Severity   Severity   `json:"severity"`
	Source     Source     `json:"source"`
}

// MitigationEntry 告警提示、防范步骤和处置方案
type MitigationEntry struct {
	Caution     string   `json:"caution"`
	Precautions []string `json:"precautions"`
	Solution    string   `json:"solution"`
}

// Method 信号来源
type Method string

const (
	MethodExactMatch Method = "ExactMatch"
	MethodHeuristic  Method = "Heuristic"
	MethodModel      Method = "Model"
	MethodAIAssisted Method = "AIAssisted"
	MethodNone       Method = "None"
)

// AnalysisResult 单个信号的分析结果
type AnalysisResult struct {
	ThreatType  AttackType      `json:"threat_type"`
	Confidence  float64         `json:"confidence"`
	Method      Method          `json:"method"`
	Explanation string          `json:"explanation"`
	Mitigation  MitigationEntry `json:"mitigation"`
}

// DatasetResult 语料精确匹配或启发式关键词打分
type DatasetResult struct {
	AnalysisResult
	SpamScore       int      `json:"spam_score"`
	MatchedPatterns []string `json:"matched_patterns,omitempty"`
	ReportID        string   `json:"report_id,omitempty"`
}

// MLResult 本地模型预测
type MLResult struct {
	AnalysisResult
	Probabilities map[string]float64 `json:"probabilities"`
}

// AttackFlow 大模型给出的攻击链
type AttackFlow struct {
	Source        string `json:"source"`
	Vulnerability string `json:"vulnerability"`
	Impact        string `json:"impact"`
}

// AIResult 外部大模型信号
type AIResult struct {
	AnalysisResult
	SpamScore  int        `json:"spam_score"`
	AttackFlow AttackFlow `json:"attack_flow"`
}

// AttackPathNode 攻击路径上的节点
type AttackPathNode struct {
	Label string `json:"label"`
	Role  string `json:"role"`
	Layer int    `json:"layer"`
}

// AttackPathEdge 攻击路径上的边
type AttackPathEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

// AttackPath 来源 -> 漏洞 -> 类别 -> 影响
type AttackPath struct {
	AttackType AttackType       `json:"attack_type"`
	Nodes      []AttackPathNode `json:"nodes"`
	Edges      []AttackPathEdge `json:"edges"`
}

// Indicator 输入文本中提取出的IP指标
type Indicator struct {
	IP           string `json:"ip"`
	Country      string `json:"country,omitempty"`
	ASN          uint   `json:"asn,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// AnalysisRequest 分析请求
type AnalysisRequest struct {
	Text        string `json:"text"`
	MessageType string `json:"message_type"`
}

// WithDefaults message_type 缺省为 email
func (r AnalysisRequest) WithDefaults() AnalysisRequest {
	if strings.TrimSpace(r.MessageType) == "" {
		r.MessageType = "email"
	}
	return r
}

// AnalysisResponse 三个可选信号并列返回，由调用方自行取舍
type AnalysisResponse struct {
	DatasetResult *DatasetResult `json:"dataset_result"`
	MLResult      *MLResult      `json:"ml_result"`
	AIResult      *AIResult      `json:"ai_result"`
	AttackPath    AttackPath     `json:"attack_path"`
	Indicators    []Indicator    `json:"indicators,omitempty"`
	ModelLoaded   bool           `json:"model_loaded"`
}

// Primary 返回用于展示和告警的主结果：优先模型，其次语料信号
func (r AnalysisResponse) Primary() AnalysisResult {
	if r.MLResult != nil {
		return r.MLResult.AnalysisResult
	}
	if r.DatasetResult != nil {
		return r.DatasetResult.AnalysisResult
	}
	if r.AIResult != nil {
		return r.AIResult.AnalysisResult
	}
	return AnalysisResult{ThreatType: Legitimate, Method: MethodNone}
}

// AlertEvent 已发送的告警，Fingerprint 是文本摘要，不保存原文
type AlertEvent struct {
	Fingerprint string     `json:"fingerprint"`
	ThreatType  AttackType `json:"threat_type"`
	Confidence  float64    `json:"confidence"`
	Method      Method     `json:"method"`
	CreatedAt   time.Time  `json:"created_at"`
}
