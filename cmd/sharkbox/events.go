package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/abelbrown/sharkbox/internal/otel"
)

// eventFilter selects events for display. Empty fields match everything.
type eventFilter struct {
	kind  string
	level string
	comp  string
	key   string
}

// levelRank returns a numeric rank for filtering (higher = more severe).
func levelRank(level otel.Level) int {
	switch level {
	case otel.LevelDebug:
		return 0
	case otel.LevelInfo, "":
		return 1
	case otel.LevelWarn:
		return 2
	case otel.LevelError:
		return 3
	default:
		return 0
	}
}

func (ef eventFilter) match(ev otel.Event) bool {
	if ef.kind != "" && !strings.HasPrefix(string(ev.Kind), ef.kind) {
		return false
	}
	if ef.level != "" && levelRank(ev.Level) < levelRank(otel.Level(ef.level)) {
		return false
	}
	if ef.comp != "" && ev.Comp != ef.comp {
		return false
	}
	if ef.key != "" && !strings.HasPrefix(ev.Key, ef.key) {
		return false
	}
	return true
}

func newEventsCmd() *cobra.Command {
	var (
		ef      eventFilter
		tail    int
		follow  bool
		rawJSON bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the JSONL event log",
		Long: `events prints recent entries of the structured event log written by every
sharkbox run: feed fetches, API requests, auth changes and navigation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch ef.level {
			case "", "debug", "info", "warn", "error":
			default:
				return fmt.Errorf("unknown level %q (want debug, info, warn or error)", ef.level)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path := cfg.EventsPath()
			f, err := os.Open(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("no event log at %s; run sharkbox first to generate events", path)
				}
				return err
			}
			defer f.Close()

			out := cmd.OutOrStdout()
			r := bufio.NewReaderSize(f, 64*1024)
			for _, l := range readTail(r, tail, ef.match) {
				fmt.Fprintln(out, formatEvent(l.ev, l.raw, rawJSON))
			}
			if !follow {
				return nil
			}
			return followEvents(cmd.Context(), path, r, out, ef.match, rawJSON)
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", 50, "number of recent events to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new events")
	cmd.Flags().StringVar(&ef.kind, "kind", "", "filter by event kind prefix (e.g. 'feed.')")
	cmd.Flags().StringVar(&ef.level, "level", "", "minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&ef.comp, "comp", "", "filter by component (feed, api, auth, ui, main)")
	cmd.Flags().StringVar(&ef.key, "key", "", "filter by feed key prefix (e.g. 'thread:42')")
	cmd.Flags().BoolVar(&rawJSON, "json", false, "print raw JSON lines")
	return cmd
}

type parsedLine struct {
	ev  otel.Event
	raw []byte
}

// readTail consumes r and returns the last n lines matching the filter.
// Lines that are not valid events are skipped.
func readTail(r *bufio.Reader, n int, match func(otel.Event) bool) []parsedLine {
	var ring []parsedLine
	if n <= 0 {
		// Still drain so follow mode starts at the end.
		for {
			if _, err := r.ReadBytes('\n'); err != nil {
				return nil
			}
		}
	}
	ring = make([]parsedLine, 0, n)
	for {
		raw, err := r.ReadBytes('\n')
		if line := trimLine(raw); len(line) > 0 {
			var ev otel.Event
			if json.Unmarshal(line, &ev) == nil && match(ev) {
				if len(ring) == n {
					copy(ring, ring[1:])
					ring = ring[:n-1]
				}
				ring = append(ring, parsedLine{ev: ev, raw: line})
			}
		}
		if err != nil {
			return ring
		}
	}
}

// followEvents prints lines appended to path after r's position until ctx is
// done.
func followEvents(ctx context.Context, path string, r *bufio.Reader, w io.Writer, match func(otel.Event) bool, rawJSON bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch event log: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch event log: %w", err)
	}

	var partial []byte
	flush := func() {
		for {
			chunk, err := r.ReadBytes('\n')
			partial = append(partial, chunk...)
			if err != nil {
				// Incomplete line; keep it until the writer finishes it.
				return
			}
			line := trimLine(partial)
			partial = partial[:0]
			if len(line) == 0 {
				continue
			}
			var ev otel.Event
			if json.Unmarshal(line, &ev) == nil && match(ev) {
				fmt.Fprintln(w, formatEvent(ev, line, rawJSON))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) {
				flush()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch event log: %w", err)
		}
	}
}

func formatEvent(ev otel.Event, raw []byte, rawJSON bool) string {
	if rawJSON {
		return string(raw)
	}
	lvl := strings.ToUpper(string(ev.Level))
	if lvl == "" {
		lvl = "?"
	}
	parts := []string{fmt.Sprintf("%s %-5s [%-4s] %-16s", ev.Time.Format("15:04:05.000"), lvl, ev.Comp, ev.Kind)}

	if ev.Method != "" {
		req := ev.Method + " " + ev.Path
		if ev.Status > 0 {
			req += fmt.Sprintf(" %d", ev.Status)
		}
		parts = append(parts, req)
	}
	if ev.Key != "" {
		parts = append(parts, fmt.Sprintf("%s p%d", ev.Key, ev.Page))
	}
	if ev.Msg != "" {
		parts = append(parts, "- "+ev.Msg)
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}
	return strings.Join(parts, " ")
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
