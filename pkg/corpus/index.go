package corpus

import (
	"strings"

	"go-threatnet/pkg/models"
)

// minMatchLen 长度不超过该值的语料文本不参与子串匹配
const minMatchLen = 4

// Index 只读的语料索引，启动时构建一次，并发请求共享
type Index struct {
	records []models.ThreatRecord
	lowered []string
	byText  map[string]int
	byID    map[string]int
}

func NewIndex(records []models.ThreatRecord) *Index {
	idx := &Index{
		records: append([]models.ThreatRecord(nil), records...),
		lowered: make([]string, len(records)),
		byText:  make(map[string]int, len(records)),
		byID:    make(map[string]int, len(records)),
	}
	for i, r := range idx.records {
		idx.lowered[i] = strings.ToLower(r.ThreatText)
		if _, dup := idx.byText[idx.lowered[i]]; !dup {
			idx.byText[idx.lowered[i]] = i
		}
		idx.byID[r.ReportID] = i
	}
	return idx
}

// Len nil 索引长度为 0
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.records)
}

// ByReportID 按报告编号查找
func (idx *Index) ByReportID(id string) (models.ThreatRecord, bool) {
	if idx == nil {
		return models.ThreatRecord{}, false
	}
	i, ok := idx.byID[id]
	if !ok {
		return models.ThreatRecord{}, false
	}
	return idx.records[i], true
}

// FindContained 整段文本相同的记录优先；否则取输入中包含的最长语料文本，
// 长度相同时按语料顺序
func (idx *Index) FindContained(input string) (models.ThreatRecord, string, bool) {
	if idx == nil {
		return models.ThreatRecord{}, "", false
	}
	in := strings.ToLower(strings.TrimSpace(input))
	if i, ok := idx.byText[in]; ok && len(in) > minMatchLen {
		return idx.records[i], idx.lowered[i], true
	}

	best := -1
	for i, text := range idx.lowered {
		if len(text) <= minMatchLen || !strings.Contains(in, text) {
			continue
		}
		if best < 0 || len(text) > len(idx.lowered[best]) {
			best = i
		}
	}
	if best < 0 {
		return models.ThreatRecord{}, "", false
	}
	return idx.records[best], idx.lowered[best], true
}
