// Package indicators pulls IPv4 literals out of free text and, when MaxMind
// databases are available, attaches country and ASN data to each address.
package indicators

import (
	"net"
	"regexp"

	"go-threatnet/pkg/logger"
	"go-threatnet/pkg/models"

	"github.com/oschwald/geoip2-golang"
)

// 每个八位组限制在 0-255
var ipv4 = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])\.){3}(?:25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])\b`)

// maxIndicators 单条文本最多提取的地址数
const maxIndicators = 16

// ExtractIPs 按出现顺序返回去重后的 IPv4 地址
func ExtractIPs(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, ip := range ipv4.FindAllString(text, -1) {
		if seen[ip] {
			continue
		}
		seen[ip] = true
		out = append(out, ip)
		if len(out) == maxIndicators {
			break
		}
	}
	return out
}

// Enricher 城市库和 ASN 库都是可选的，缺失时只返回地址本身
type Enricher struct {
	geoIP *geoip2.Reader
	asnDB *geoip2.Reader
}

// Open 路径为空的库跳过；打开失败记录日志后同样跳过
func Open(cityPath, asnPath string) *Enricher {
	e := &Enricher{}
	if cityPath != "" {
		db, err := geoip2.Open(cityPath)
		if err != nil {
			logger.Log.Warnf("打开GeoIP数据库失败, 跳过地理信息: %v", err)
		} else {
			e.geoIP = db
		}
	}
	if asnPath != "" {
		db, err := geoip2.Open(asnPath)
		if err != nil {
			logger.Log.Warnf("打开ASN数据库失败, 跳过ASN信息: %v", err)
		} else {
			e.asnDB = db
		}
	}
	return e
}

// Extract 提取并补充地理位置和 ASN 信息
func (e *Enricher) Extract(text string) []models.Indicator {
	ips := ExtractIPs(text)
	if len(ips) == 0 {
		return nil
	}
	out := make([]models.Indicator, 0, len(ips))
	for _, ip := range ips {
		out = append(out, e.enrich(ip))
	}
	return out
}

func (e *Enricher) enrich(addr string) models.Indicator {
	ind := models.Indicator{IP: addr}
	if e == nil {
		return ind
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return ind
	}

	if e.geoIP != nil {
		if record, err := e.geoIP.Country(ip); err == nil {
			ind.Country = record.Country.IsoCode
		} else {
			logger.Log.Debugf("查询国家信息失败: ip=%s, err=%v", addr, err)
		}
	}
	if e.asnDB != nil {
		if record, err := e.asnDB.ASN(ip); err == nil {
			ind.ASN = record.AutonomousSystemNumber
			ind.Organization = record.AutonomousSystemOrganization
		} else {
			logger.Log.Debugf("查询ASN信息失败: ip=%s, err=%v", addr, err)
		}
	}
	return ind
}

func (e *Enricher) Close() {
	if e == nil {
		return
	}
	if e.geoIP != nil {
		e.geoIP.Close()
	}
	if e.asnDB != nil {
		e.asnDB.Close()
	}
}
