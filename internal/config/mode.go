package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConflictingModes is returned when more than one one-shot mode is requested.
var ErrConflictingModes = errors.New("conflicting modes")

// ModeKind identifies what a single invocation does.
type ModeKind int

const (
	// ModeTrack runs the poll loop until cancelled.
	ModeTrack ModeKind = iota
	// ModeClear drops all persisted data.
	ModeClear
	// ModeReport prints total time per app as HH:MM:SS.
	ModeReport
	// ModeHourReport prints total hours per app.
	ModeHourReport
	// ModeHourReportFor prints total hours for a single app.
	ModeHourReportFor
)

func (k ModeKind) String() string {
	switch k {
	case ModeTrack:
		return "track"
	case ModeClear:
		return "clear-db"
	case ModeReport:
		return "report"
	case ModeHourReport:
		return "hour-report"
	case ModeHourReportFor:
		return "hour-report-for"
	default:
		return fmt.Sprintf("mode(%d)", int(k))
	}
}

// Mode is the resolved invocation mode.
type Mode struct {
	Kind ModeKind
	App  string // set for ModeHourReportFor
}

// ModeFlags carries the raw one-shot selections from the command line.
type ModeFlags struct {
	ClearDB       bool
	Report        bool
	HourReport    bool
	HourReportFor string
}

// ResolveMode picks the single requested mode, defaulting to tracking.
func ResolveMode(f ModeFlags) (Mode, error) {
	var selected []Mode
	if f.ClearDB {
		selected = append(selected, Mode{Kind: ModeClear})
	}
	if f.Report {
		selected = append(selected, Mode{Kind: ModeReport})
	}
	if f.HourReport {
		selected = append(selected, Mode{Kind: ModeHourReport})
	}
	if f.HourReportFor != "" {
		selected = append(selected, Mode{Kind: ModeHourReportFor, App: f.HourReportFor})
	}

	switch len(selected) {
	case 0:
		return Mode{Kind: ModeTrack}, nil
	case 1:
		return selected[0], nil
	}

	names := make([]string, 0, len(selected))
	for _, m := range selected {
		names = append(names, "--"+m.Kind.String())
	}
	return Mode{}, fmt.Errorf("%w: %s are mutually exclusive", ErrConflictingModes, strings.Join(names, ", "))
}
