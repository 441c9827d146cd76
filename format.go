package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tonimelisma/davharness/internal/dav"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// formatSize returns a human-readable size string (e.g. "1.2 MiB").
func formatSize(bytes int64) string {
	if bytes < 0 {
		return fmt.Sprintf("%d B", bytes)
	}

	return humanize.IBytes(uint64(bytes))
}

// responseJSON is the --json rendering of a response.
type responseJSON struct {
	Method     string              `json:"method"`
	URL        string              `json:"url"`
	Status     int                 `json:"status"`
	Headers    map[string][]string `json:"headers,omitempty"`
	Body       string              `json:"body,omitempty"`
	DurationMS int64               `json:"duration_ms"`
}

// printResponse writes resp to w: the status line, the headers sorted by
// name, and the body.
func printResponse(w io.Writer, resp *dav.Response, asJSON bool) error {
	if asJSON {
		return printJSON(w, responseJSON{
			Method:     resp.Method,
			URL:        resp.URL,
			Status:     resp.StatusCode,
			Headers:    resp.Header,
			Body:       string(resp.Body),
			DurationMS: resp.Duration.Milliseconds(),
		})
	}

	ew := &errWriter{w: w}

	ew.printf("%s %s\n", resp.Method, resp.URL)
	ew.printf("%d %s (%s, %s)\n", resp.StatusCode, http.StatusText(resp.StatusCode),
		formatSize(int64(len(resp.Body))), resp.Duration.Round(time.Millisecond))

	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		ew.printf("%s: %s\n", name, strings.Join(resp.Header[name], ", "))
	}

	if len(resp.Body) > 0 {
		ew.printf("\n%s", resp.Body)

		if resp.Body[len(resp.Body)-1] != '\n' {
			ew.printf("\n")
		}
	}

	return ew.err
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// errWriter wraps an io.Writer and captures the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// checkExpect enforces --expect against resp.
func checkExpect(expect int, resp *dav.Response) error {
	if expect == 0 || resp == nil || resp.StatusCode == expect {
		return nil
	}

	return fmt.Errorf("%w: %s %s returned %d, expected %d",
		errStatusMismatch, resp.Method, resp.URL, resp.StatusCode, expect)
}

// report prints resp and applies --expect. It is the tail of every
// single-request command.
func (cc *CLIContext) report(resp *dav.Response) error {
	if err := printResponse(cc.Out, resp, cc.Flags.JSON); err != nil {
		return err
	}

	return checkExpect(cc.Flags.Expect, resp)
}
