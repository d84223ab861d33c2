// Package catalog holds the static mitigation playbooks and attack-path table
// shared by every call site that renders a prediction.
package catalog

import (
	"go-threatnet/pkg/models"
)

var mitigations = map[models.AttackType]models.MitigationEntry{
	models.Phishing: {
		Caution: "Do NOT click any links or download attachments. The sender identity is likely spoofed.",
		Precautions: []string{
			"Verify sender email address carefully.",
			"Hover over links to see the actual URL.",
			"Enable multi-factor authentication (MFA).",
		},
		Solution: "Report the email to IT Security immediately. Isolate the affected machine if a link was clicked. Reset credentials.",
	},
	models.Malware: {
		Caution: "Malicious software detected. It may be stealing data or damaging system files.",
		Precautions: []string{
			"Disconnect the device from the network immediately.",
			"Do not login to sensitive accounts.",
			"Ensure backup drives are disconnected.",
		},
		Solution: "Run a full system scan using Endpoint Detection & Response (EDR) tools. Reimage the machine if persistence is confirmed.",
	},
	models.DDoS: {
		Caution: "Network traffic spike detected. Services may become unavailable.",
		Precautions: []string{
			"Monitor bandwidth usage.",
			"Identify source IPs.",
			"Prepare to scale resources.",
		},
		Solution: "Activate DDoS mitigation services (e.g., Cloudflare, AWS Shield). Block malicious IP ranges at the firewall.",
	},
	models.Ransomware: {
		Caution: "CRITICAL: Files are being encrypted. Do NOT pay the ransom.",
		Precautions: []string{
			"Isolate the infected host immediately.",
			"Check for 'vshadow' deletion commands.",
			"Verify backup integrity.",
		},
		Solution: "Disconnect network. Identify the strain using ID-Ransomware. Restore from offline backups. Patch the entry vector (e.g., RDP).",
	},
	models.SQLInjection: {
		Caution: "Database integrity at risk. Attacker may be dumping data.",
		Precautions: []string{
			"Check database logs for query anomalies.",
			"Monitor for data exfiltration.",
		},
		Solution: "Sanitize all user inputs. Use Prepared Statements (Parameterized Queries). Patch vulnerable input fields immediately.",
	},
}

var fallbackMitigation = models.MitigationEntry{
	Caution:     "Unknown Threat Pattern",
	Precautions: []string{"Investigate manually"},
	Solution:    "Isolate and Analyze",
}

type pathNodes struct {
	src, vuln, impact string
}

var attackPaths = map[models.AttackType]pathNodes{
	models.Phishing:     {"Attacker (Email)", "Human Element", "Credential Theft"},
	models.Malware:      {"C2 Server", "Unpatched Software", "System Compromise"},
	models.DDoS:         {"Botnet", "Network Bandwidth", "Service Unavailable"},
	models.Ransomware:   {"Malicious Payload", "RDP / Phishing", "Data Encryption"},
	models.SQLInjection: {"Web Client", "Input Fields", "Database Leak"},
}

var fallbackPath = pathNodes{"Unknown Source", "System Vulnerability", "Security Breach"}

// Lookup 返回类别对应的处置条目，未知类别返回通用条目
func Lookup(attackType string) models.MitigationEntry {
	t, _ := models.ParseAttackType(attackType)
	entry, ok := mitigations[t]
	if !ok {
		entry = fallbackMitigation
	}
	return clone(entry)
}

// Known 类别是否在处置表中
func Known(attackType string) bool {
	t, _ := models.ParseAttackType(attackType)
	_, ok := mitigations[t]
	return ok
}

// Path 返回 来源 -> 漏洞 -> 类别 -> 影响 的有序攻击路径
func Path(attackType string) models.AttackPath {
	t, _ := models.ParseAttackType(attackType)
	nodes, ok := attackPaths[t]
	if !ok {
		nodes = fallbackPath
	}
	category := string(t)

	return models.AttackPath{
		AttackType: t,
		Nodes: []models.AttackPathNode{
			{Label: nodes.src, Role: "source", Layer: 0},
			{Label: nodes.vuln, Role: "vulnerability", Layer: 1},
			{Label: category, Role: "category", Layer: 2},
			{Label: nodes.impact, Role: "impact", Layer: 3},
		},
		Edges: []models.AttackPathEdge{
			{From: nodes.src, To: nodes.vuln, Label: "Exploits"},
			{From: nodes.vuln, To: category, Label: "Facilitates"},
			{From: category, To: nodes.impact, Label: "Causes"},
		},
	}
}

// 调用方拿到的是副本，静态表不会被改写
func clone(e models.MitigationEntry) models.MitigationEntry {
	e.Precautions = append([]string(nil), e.Precautions...)
	return e
}
