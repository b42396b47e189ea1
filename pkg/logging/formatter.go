package logging

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// TextFormatter formats log entries as human-readable text, one line per
// entry.
type TextFormatter struct {
	// TimestampFormat is the format for timestamps
	TimestampFormat string
	// DisableTimestamp disables timestamp output
	DisableTimestamp bool
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000",
	}
}

// Format formats a log entry as text
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer

	if !f.DisableTimestamp {
		buf.WriteString(entry.Timestamp.Format(f.TimestampFormat))
		buf.WriteByte(' ')
	}

	buf.WriteString(fmt.Sprintf("[%s] ", entry.Level.String()))
	buf.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		buf.WriteString(" | ")
		buf.WriteString(f.formatFields(entry.Fields))
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// formatFields formats fields as sorted key=value pairs
func (f *TextFormatter) formatFields(fields map[string]interface{}) string {
	pairs := make([]string, 0, len(fields))
	for k, v := range fields {
		var valueStr string
		switch val := v.(type) {
		case error:
			valueStr = fmt.Sprintf("%q", val.Error())
		case string:
			if strings.Contains(val, " ") {
				valueStr = fmt.Sprintf("%q", val)
			} else {
				valueStr = val
			}
		default:
			valueStr = fmt.Sprintf("%v", v)
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, valueStr))
	}

	sort.Strings(pairs)
	return strings.Join(pairs, " ")
}
