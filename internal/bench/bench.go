// Package bench summarizes raw benchmark logs written by the build.
//
// A log line has the form
//
//	2026-03-01 12:00:00 | build/var/shocks.parquet | 42s
//
// Blank lines and lines starting with # are ignored, as are lines whose
// timestamp or duration does not parse.
package bench

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the layout of the first field of a log line.
const TimestampLayout = "2006-01-02 15:04:05"

// NoData is printed in place of the table when the log has no records.
const NoData = "(no benchmark data yet)"

// Record is one timed run.
type Record struct {
	At      time.Time
	Label   string
	Seconds int64
}

// Parse reads records from a benchmark log.
func Parse(r io.Reader) ([]Record, error) {
	var records []Record
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if rec, ok := parseLine(sc.Text()); ok {
			records = append(records, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("bench: failed to read log: %w", err)
	}
	return records, nil
}

func parseLine(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Record{}, false
	}
	parts := strings.Split(line, "|")
	if len(parts) != 3 {
		return Record{}, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	at, err := time.Parse(TimestampLayout, parts[0])
	if err != nil {
		return Record{}, false
	}
	seconds, err := strconv.ParseInt(strings.TrimRight(parts[2], "s"), 10, 64)
	if err != nil {
		return Record{}, false
	}
	return Record{At: at, Label: parts[1], Seconds: seconds}, true
}

// Stat aggregates the runs of one target.
type Stat struct {
	Label  string `json:"label"`
	Count  int    `json:"count"`
	Median int64  `json:"median_seconds"`
	Max    int64  `json:"max_seconds"`
	Total  int64  `json:"total_seconds"`
}

// Aggregate groups records by label. Targets are sorted by label.
func Aggregate(records []Record) []Stat {
	grouped := make(map[string][]int64)
	for _, r := range records {
		grouped[r.Label] = append(grouped[r.Label], r.Seconds)
	}
	labels := make([]string, 0, len(grouped))
	for l := range grouped {
		labels = append(labels, l)
	}
	slices.Sort(labels)

	stats := make([]Stat, 0, len(labels))
	for _, l := range labels {
		vals := grouped[l]
		slices.Sort(vals)
		var total int64
		for _, v := range vals {
			total += v
		}
		stats = append(stats, Stat{
			Label:  l,
			Count:  len(vals),
			Median: median(vals),
			Max:    vals[len(vals)-1],
			Total:  total,
		})
	}
	return stats
}

// median of sorted values; for an even count the floored mean of the two
// middle values.
func median(sorted []int64) int64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return floorDiv(sorted[n/2-1]+sorted[n/2], 2)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Summarize writes the summary report for records read from rawLog.
func Summarize(w io.Writer, records []Record, rawLog string, now time.Time) error {
	lines := []string{
		fmt.Sprintf("## Benchmark summary generated %s", now.Format(TimestampLayout)),
		fmt.Sprintf("Raw log: %s", rawLog),
		"",
		fmt.Sprintf("%-30s %5s %8s %8s %10s", "Target", "Count", "Median", "Max", "Total"),
		strings.Repeat("-", 70),
	}
	if len(records) == 0 {
		lines = append(lines, NoData)
	}
	for _, s := range Aggregate(records) {
		lines = append(lines, fmt.Sprintf("%-30s %5d %8ds %8ds %10ds", s.Label, s.Count, s.Median, s.Max, s.Total))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}
