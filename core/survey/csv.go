package survey

import (
	"strings"
	"time"
)

const CSVContentType = "text/csv; charset=utf-8"

var csvMetaColumns = []string{"id", "form_type", "program_id", "student_id", "submitted_at"}

// CSVFilename returns the export filename of a form type.
func CSVFilename(t FormType) string {
	return string(t) + "_form_answers.csv"
}

// CSVHeader returns the meta columns followed by the question labels of the form type.
func CSVHeader(t FormType) []string {
	questions := Questions(t)
	header := make([]string, 0, len(csvMetaColumns)+len(questions))
	header = append(header, csvMetaColumns...)
	for _, q := range questions {
		header = append(header, q.Label)
	}
	return header
}

// GenerateCSV renders answers of the given form type, one row per answer, in the given order.
// Every row has as many cells as the header; missing answers are empty cells.
func GenerateCSV(t FormType, answers []FormAnswer) []byte {
	questions := Questions(t)

	var b strings.Builder
	writeCSVRow(&b, CSVHeader(t))
	row := make([]string, 0, len(csvMetaColumns)+len(questions))
	for _, fa := range answers {
		row = row[:0]
		row = append(row, fa.ID, string(fa.FormType), fa.ProgramID, fa.StudentID, fa.SubmittedAt.UTC().Format(time.RFC3339))
		for _, q := range questions {
			row = append(row, formatValue(fa.Answers[q.ID]))
		}
		writeCSVRow(&b, row)
	}
	return []byte(b.String())
}

func writeCSVRow(b *strings.Builder, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(EscapeCSVField(cell))
	}
	b.WriteByte('\n')
}

// EscapeCSVField quotes a value containing a comma, a quote, CR or LF, doubling inner quotes.
func EscapeCSVField(s string) string {
	if !strings.ContainsAny(s, ",\"\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
