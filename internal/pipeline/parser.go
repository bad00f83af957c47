package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/practicepulse/api/internal/model"
)

// parsePMSExport reads a CSV export from a practice-management system into
// referral records. The header row is matched case-insensitively with spaces
// normalized to underscores; referral_source is the only required column.
func parsePMSExport(raw []byte) ([]model.PMSRecord, error) {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
		columns[key] = i
	}

	sourceCol, ok := columns["referral_source"]
	if !ok {
		return nil, fmt.Errorf("missing required column referral_source")
	}

	var records []model.PMSRecord
	line := 1
	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("row %d: %w", line+1, err)
		}
		line++

		record := model.PMSRecord{ReferralSource: strings.TrimSpace(row[sourceCol])}
		if record.ReferralSource == "" {
			return nil, fmt.Errorf("row %d: empty referral_source", line)
		}

		if col, ok := columns["patient_count"]; ok && col < len(row) && row[col] != "" {
			n, err := strconv.Atoi(strings.TrimSpace(row[col]))
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid patient_count %q", line, row[col])
			}
			record.PatientCount = n
		}
		if col, ok := columns["production"]; ok && col < len(row) && row[col] != "" {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid production %q", line, row[col])
			}
			record.Production = v
		}
		if col, ok := columns["month"]; ok && col < len(row) {
			record.Month = strings.TrimSpace(row[col])
		}

		records = append(records, record)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("export contains no data rows")
	}

	return records, nil
}
