// Package render lays out departures for a 20x4 character display.
package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tramboard/tramboard/internal/transit"
)

// Board geometry.
const (
	Columns      = 20
	Rows         = 4
	RouteWidth   = 4
	MinutesWidth = 3

	// DestinationWidth is what remains after route, minutes and two separators.
	DestinationWidth = Columns - RouteWidth - MinutesWidth - 2

	// MaxMinutes is the largest ETA the minutes field can show.
	MaxMinutes = 99
)

// NoData fills rows without a departure.
const NoData = "No data"

// Splash is shown before the first update.
const Splash = "DE Tram Tracker"

// FormatMinutes renders an ETA right-aligned in three columns, e.g. " 3m" or "42m".
// Values above 99 are shown as 99.
func FormatMinutes(minutes uint8) string {
	m := int(minutes)
	if m > MaxMinutes {
		m = MaxMinutes
	}
	return fmt.Sprintf("%*s", MinutesWidth, fmt.Sprintf("%dm", m))
}

// Row renders one departure as a full-width line.
func Row(d transit.Departure) string {
	return fmt.Sprintf("%-*.*s %-*.*s %s",
		RouteWidth, RouteWidth, d.Line.String(),
		DestinationWidth, DestinationWidth, d.Destination.String(),
		FormatMinutes(d.ETAMinutes))
}

func noDataRow() string {
	return fmt.Sprintf("%-*s", Columns, NoData)
}

// Lines renders a snapshot into exactly Rows lines of Columns characters.
// The first departures fill the top rows; the rest of the board says "No data".
func Lines(snap transit.Snapshot) []string {
	lines := make([]string, 0, Rows)
	for i := 0; i < snap.Count && i < Rows; i++ {
		lines = append(lines, Row(snap.Departures[i]))
	}
	for len(lines) < Rows {
		lines = append(lines, noDataRow())
	}
	return lines
}

// Text renders the board as newline-terminated lines.
func Text(snap transit.Snapshot) string {
	return strings.Join(Lines(snap), "\n") + "\n"
}

// Source supplies departure snapshots.
type Source interface {
	Departures() transit.Snapshot
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() transit.Snapshot

// Departures calls f.
func (f SourceFunc) Departures() transit.Snapshot {
	return f()
}

// ConsoleConfig holds configuration for the console display.
type ConsoleConfig struct {
	// Out receives the rendered board.
	Out io.Writer

	// Period is how often the source is checked for a new generation. Default: 1 second
	Period time.Duration

	// Logger for display operations.
	Logger zerolog.Logger
}

// Console redraws the board on a writer whenever the departures change.
type Console struct {
	out    io.Writer
	period time.Duration
	logger zerolog.Logger
}

// NewConsole creates a console display.
func NewConsole(cfg ConsoleConfig) *Console {
	period := cfg.Period
	if period <= 0 {
		period = time.Second
	}
	return &Console{out: cfg.Out, period: period, logger: cfg.Logger}
}

// Run shows the splash line and redraws on every new generation until ctx is done.
func (c *Console) Run(ctx context.Context, src Source) error {
	if _, err := fmt.Fprintf(c.out, "%-*s\n", Columns, Splash); err != nil {
		return fmt.Errorf("writing splash: %w", err)
	}

	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	var shown uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap := src.Departures()
			if snap.Generation == shown {
				continue
			}
			shown = snap.Generation
			if _, err := io.WriteString(c.out, Text(snap)); err != nil {
				c.logger.Warn().Err(err).Msg("writing board failed")
			}
		}
	}
}
