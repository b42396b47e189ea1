// Package query owns the database connection and normalizes heterogeneous
// statement results into a single serializable outcome.
package query

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the normalized result of one statement. Exactly one of RowSet
// and Affected is populated, determined by whether the statement produced
// describable columns.
type Outcome struct {
	RowSet   *RowSet
	Affected *Affected
}

// RowSet holds a tabular result: column names and rows, both in the order
// the engine returned them. No limiting, sorting, or truncation is applied.
type RowSet struct {
	Columns []string
	Rows    [][]string
}

// Affected holds the row count reported by the engine for statements that
// return no rows. Zero when the engine reports nothing.
type Affected struct {
	Count int64
}

// Render produces the human-readable text payload for a tool call response.
func (o *Outcome) Render() string {
	if o.RowSet != nil {
		return o.RowSet.render()
	}
	return fmt.Sprintf("Query executed successfully.\nAffected rows: %d", o.Affected.Count)
}

func (rs *RowSet) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query executed successfully.\nReturned %d rows.\n\n", len(rs.Rows))

	if len(rs.Rows) == 0 {
		b.WriteString("No rows returned.")
		return b.String()
	}

	b.WriteString(strings.Join(rs.Columns, " | "))
	for _, row := range rs.Rows {
		b.WriteByte('\n')
		b.WriteString(strings.Join(row, " | "))
	}
	return b.String()
}

// formatValue renders a single column value as text. Byte and time values
// get stable textual forms; everything else uses its default formatting.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case [16]byte:
		return formatUUID(val)
	case []byte:
		if len(val) == 16 {
			var u [16]byte
			copy(u[:], val)
			return formatUUID(u)
		}
		return fmt.Sprintf("\\x%x", val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatUUID renders a 16-byte value in canonical UUID form, the shape pgx
// hands back for uuid columns without a registered codec.
func formatUUID(v [16]byte) string {
	return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		v[0], v[1], v[2], v[3], v[4], v[5], v[6], v[7],
		v[8], v[9], v[10], v[11], v[12], v[13], v[14], v[15])
}
