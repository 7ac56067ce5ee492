package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Export formats accepted by the export endpoint.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// ValidateExportFormat normalizes the requested format, defaulting to
// JSON when absent and rejecting anything it does not know.
func ValidateExportFormat(format string) (string, error) {
	switch format {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", NewValidationError("INVALID_FORMAT", fmt.Sprintf("Unsupported export format %q", format))
	}
}

// CSVFromReport renders the data array of a previously fetched report
// body as CSV. Columns follow the key order of the first row; string
// values are quoted with doubled embedded quotes; nested objects and
// arrays are JSON-stringified into a quoted cell; null becomes an
// empty cell.
func CSVFromReport(body []byte) (string, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Data) == 0 {
		return "", NewValidationError("INVALID_REPORT_DATA", "No valid report data provided for export")
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(envelope.Data, &rows); err != nil {
		return "", NewValidationError("INVALID_REPORT_DATA", "Report data must be an array of records")
	}
	if len(rows) == 0 {
		return "", nil
	}

	headers, err := objectKeys(rows[0])
	if err != nil {
		return "", NewValidationError("INVALID_REPORT_DATA", "Report records must be objects")
	}

	var b strings.Builder
	b.WriteString(strings.Join(headers, ","))
	b.WriteByte('\n')

	for _, row := range rows {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(row, &fields); err != nil {
			return "", NewValidationError("INVALID_REPORT_DATA", "Report records must be objects")
		}
		for i, header := range headers {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(csvCell(fields[header]))
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func csvCell(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return quoteCSV(s)
	case '{', '[':
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return ""
		}
		return quoteCSV(compact.String())
	default:
		// numbers and booleans pass through bare
		return string(raw)
	}
}

func quoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// objectKeys walks the tokens of a JSON object and returns its top
// level keys in document order, which encoding/json maps would lose.
func objectKeys(raw []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	t, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := t.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", t)
	}
	var keys []string
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", kt)
		}
		keys = append(keys, key)
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return keys, nil
}

func skipValue(dec *json.Decoder) error {
	t, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := t.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	for dec.More() {
		if d == '{' {
			if _, err := dec.Token(); err != nil {
				return err
			}
		}
		if err := skipValue(dec); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
