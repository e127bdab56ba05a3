// Package runlog writes and aggregates the durable per-stage log records.
package runlog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Record is one durable line summarizing a terminal stage result.
// Error is the last field so its text may contain the field separator;
// newlines are escaped so a record never spans lines.
type Record struct {
	Model          string
	Stage          string
	Cohort         string
	Start          time.Time
	RuntimeSeconds int
	Status         string
	Error          string
}

var (
	modelPattern   = regexp.MustCompile(`Model:\s*([^,]+)`)
	stagePattern   = regexp.MustCompile(`Stage:\s*([^,]+)`)
	cohortPattern  = regexp.MustCompile(`Cohort:\s*([^,]+)`)
	startPattern   = regexp.MustCompile(`Start:\s*([^,]+)`)
	runtimePattern = regexp.MustCompile(`Runtime:\s*(\d+)\s*\(s\)`)
	statusPattern  = regexp.MustCompile(`Status:\s*([^,]+)`)
	errorPattern   = regexp.MustCompile(`Error:\s*(.*)$`)
)

// Format renders the record as a single log line (without newline).
func (r Record) Format() string {
	start := ""
	if !r.Start.IsZero() {
		start = r.Start.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("Model: %s, Stage: %s, Cohort: %s, Start: %s, Runtime: %d (s), Status: %s, Error: %s",
		r.Model, r.Stage, r.Cohort, start, r.RuntimeSeconds, r.Status, escape(r.Error))
}

// ParseRecord parses one log line. A line without a Status field is
// considered malformed.
func ParseRecord(line string) (Record, error) {
	rec := Record{}

	status := statusPattern.FindStringSubmatch(line)
	if status == nil {
		return rec, fmt.Errorf("malformed record: no status field")
	}
	rec.Status = strings.TrimSpace(status[1])

	if m := modelPattern.FindStringSubmatch(line); m != nil {
		rec.Model = strings.TrimSpace(m[1])
	}
	if m := stagePattern.FindStringSubmatch(line); m != nil {
		rec.Stage = strings.TrimSpace(m[1])
	}
	if m := cohortPattern.FindStringSubmatch(line); m != nil {
		rec.Cohort = strings.TrimSpace(m[1])
	}
	if m := startPattern.FindStringSubmatch(line); m != nil {
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(m[1])); err == nil {
			rec.Start = ts
		}
	}
	if m := runtimePattern.FindStringSubmatch(line); m != nil {
		rec.RuntimeSeconds, _ = strconv.Atoi(m[1])
	}
	if m := errorPattern.FindStringSubmatch(line); m != nil {
		rec.Error = unescape(m[1])
	}

	return rec, nil
}

// escape keeps a record on one line: backslashes first, then newlines.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
			i++
		case 'r':
			b.WriteByte('\r')
			i++
		case '\\':
			b.WriteByte('\\')
			i++
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
