package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/trailhawk/internal/dlq"
	"github.com/telhawk-systems/trailhawk/internal/persist"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	line := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	line(t.headers)
	sep := make([]string, len(widths))
	for i, n := range widths {
		sep[i] = strings.Repeat("-", n)
	}
	line(sep)
	for _, row := range t.rows {
		line(row)
	}
}

// batchReport is the replay result for one input.
type batchReport struct {
	Input    string            `json:"input" yaml:"input"`
	Error    string            `json:"error,omitempty" yaml:"error,omitempty"`
	Outcomes []persist.Outcome `json:"outcomes" yaml:"outcomes"`
}

func printReports(w io.Writer, format string, reports []batchReport) error {
	switch format {
	case formatJSON:
		return writeJSON(w, reports)
	case formatYAML:
		return writeYAML(w, reports)
	}

	t := newTable("INPUT", "EVENT ID", "EVENT TIME", "ACCESS KEY", "USER", "STATUS", "DETAIL")
	for _, r := range reports {
		if r.Error != "" {
			t.addRow(r.Input, "-", "-", "-", "-", "rejected", r.Error)
			continue
		}
		for _, o := range r.Outcomes {
			detail := o.Cause
			if o.Response != nil {
				detail = o.Response.Backend + ":" + o.Response.Key
			}
			t.addRow(r.Input, o.EventID, o.EventTime, o.AccessKeyID, o.User, string(o.Status), detail)
		}
	}
	t.render(w)
	return nil
}

func printDeadLetters(w io.Writer, format string, records []dlq.FailedRecord) error {
	switch format {
	case formatJSON:
		return writeJSON(w, records)
	case formatYAML:
		return writeYAML(w, records)
	}

	t := newTable("ID", "WRITTEN", "BACKEND", "EVENT ID", "ATTEMPTS", "ERROR")
	for _, r := range records {
		eventID := ""
		if r.Record != nil {
			eventID = r.Record.EventID
		}
		t.addRow(r.ID, r.Timestamp.Format("2006-01-02T15:04:05Z07:00"), r.Backend, eventID, strconv.Itoa(r.Attempts), r.Error)
	}
	t.render(w)
	return nil
}
