package corpus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go-threatnet/pkg/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Sheet1"

var header = []string{"report_id", "threat_text", "attack_type", "severity", "source"}

// ErrMissingColumn 表头缺少必需列
var ErrMissingColumn = errors.New("corpus: missing column")

// WriteXLSX 先写临时文件再重命名覆盖目标文件，读者不会看到写了一半的文件
func WriteXLSX(path string, records []models.ThreatRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &row); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{r.ReportID, r.ThreatText, string(r.AttackType), string(r.Severity), string(r.Source)}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".corpus-*.xlsx")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// ReadXLSX 读取第一个工作表，按表头定位列，跳过空文本行
func ReadXLSX(path string) ([]models.ThreatRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in %s", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows from sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, h := range []string{"report_id", "threat_text", "attack_type"} {
		if _, ok := cols[h]; !ok {
			return nil, fmt.Errorf("%w %q in %s", ErrMissingColumn, h, path)
		}
	}

	cell := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	records := make([]models.ThreatRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		text := cell(row, "threat_text")
		if text == "" {
			continue
		}
		attack, _ := models.ParseAttackType(cell(row, "attack_type"))
		records = append(records, models.ThreatRecord{
			ReportID:   cell(row, "report_id"),
			ThreatText: text,
			AttackType: attack,
			Severity:   models.Severity(cell(row, "severity")),
			Source:     models.Source(cell(row, "source")),
		})
	}
	return records, nil
}
