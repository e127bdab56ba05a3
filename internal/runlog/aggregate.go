package runlog

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rrchai/medrun/internal/run"
)

// logFilePattern matches per-stage log filenames: {model}_{stage}.log.
// The stage alternation anchors the split because model names may
// themselves contain underscores.
var logFilePattern = regexp.MustCompile(`^(.+)_(` + stageAlternation() + `)\.log$`)

func stageAlternation() string {
	names := make([]string, 0, len(run.Stages()))
	for _, s := range run.Stages() {
		names = append(names, regexp.QuoteMeta(string(s)))
	}
	return strings.Join(names, "|")
}

// errorSummaryPatterns extract a concise error summary from recorded
// error text, most specific first.
var errorSummaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`([A-Za-z]+Error): (.+?)(?:\n|$)`),
	regexp.MustCompile(`([A-Za-z]+Exception): (.+?)(?:\n|$)`),
	regexp.MustCompile(`socket\.gaierror: (.+?)(?:\n|$)`),
}

// Row is one aggregated record.
type Row struct {
	Model          string
	Stage          string
	RuntimeSeconds int
	RuntimeMinutes float64
	RuntimeHours   float64
	Status         string
	Error          string
}

// Summary is the result of an aggregation pass over a log directory.
type Summary struct {
	Rows []Row

	// Malformed counts skipped unparsable lines.
	Malformed int

	// TotalSubmissions is the number of distinct models seen.
	TotalSubmissions int

	// Complete counts models with all three stages present and Completed.
	Complete int

	// Failed counts the remaining models.
	Failed int
}

// Aggregate scans all per-stage log files under logDir and produces one
// summary row per record, sorted by model then stage. Malformed lines
// are skipped and counted, never fatal.
func Aggregate(logDir string) (*Summary, error) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory %s: %w", logDir, err)
	}

	summary := &Summary{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := logFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}

		rows, malformed := scanLogFile(filepath.Join(logDir, entry.Name()), match[1], match[2])
		summary.Rows = append(summary.Rows, rows...)
		summary.Malformed += malformed
	}

	sort.Slice(summary.Rows, func(i, j int) bool {
		if summary.Rows[i].Model != summary.Rows[j].Model {
			return summary.Rows[i].Model < summary.Rows[j].Model
		}
		return summary.Rows[i].Stage < summary.Rows[j].Stage
	})

	summary.countSubmissions()
	return summary, nil
}

// scanLogFile parses every record line of one log file. The filename
// supplies model and stage identity; record fields win when present.
func scanLogFile(path, model, stageName string) ([]Row, int) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 1
	}
	defer file.Close()

	var rows []Row
	malformed := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			malformed++
			continue
		}
		if rec.Model == "" {
			rec.Model = model
		}
		if rec.Stage == "" {
			rec.Stage = stageName
		}
		rows = append(rows, Row{
			Model:          rec.Model,
			Stage:          rec.Stage,
			RuntimeSeconds: rec.RuntimeSeconds,
			RuntimeMinutes: roundTo(float64(rec.RuntimeSeconds)/60, 2),
			RuntimeHours:   roundTo(float64(rec.RuntimeSeconds)/3600, 2),
			Status:         rec.Status,
			Error:          SummarizeError(rec.Error),
		})
	}
	if err := scanner.Err(); err != nil {
		malformed++
	}

	return rows, malformed
}

// countSubmissions computes per-model completion. A model is complete
// when all three stages are present and Completed; last status wins for
// repeated records of the same stage.
func (s *Summary) countSubmissions() {
	byModel := make(map[string]map[string]string)
	for _, row := range s.Rows {
		if byModel[row.Model] == nil {
			byModel[row.Model] = make(map[string]string)
		}
		byModel[row.Model][row.Stage] = row.Status
	}

	s.TotalSubmissions = len(byModel)
	for _, stages := range byModel {
		complete := true
		for _, stageName := range run.Stages() {
			if stages[string(stageName)] != "Completed" {
				complete = false
				break
			}
		}
		if complete {
			s.Complete++
		} else {
			s.Failed++
		}
	}
}

// WriteCSV renders the summary rows as CSV.
func (s *Summary) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"model_name", "task", "runtime_s", "runtime_min", "runtime_h", "status", "error"}); err != nil {
		return err
	}
	for _, row := range s.Rows {
		record := []string{
			row.Model,
			row.Stage,
			strconv.Itoa(row.RuntimeSeconds),
			strconv.FormatFloat(row.RuntimeMinutes, 'f', -1, 64),
			strconv.FormatFloat(row.RuntimeHours, 'f', -1, 64),
			row.Status,
			row.Error,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SummarizeError extracts a concise summary from full error text: a
// known exception pattern when present, otherwise the first line
// truncated at 100 characters.
func SummarizeError(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	for _, pattern := range errorSummaryPatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		if len(match) == 3 {
			return match[1] + ": " + match[2]
		}
		return match[1]
	}

	firstLine := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	if len(firstLine) > 100 {
		return firstLine[:100] + "..."
	}
	return firstLine
}

func roundTo(v float64, places int) float64 {
	shift := 1.0
	for i := 0; i < places; i++ {
		shift *= 10
	}
	return float64(int64(v*shift+0.5)) / shift
}
