package catalog

import (
	"context"
	"fmt"
	"log/slog"
)

// Severity classifies a merge diagnostic.
type Severity int

const (
	// SeverityWarning is an ignorable problem, such as an unmatched directive.
	SeverityWarning Severity = iota
	// SeverityError means a transformer was unusable and has been dropped.
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic is a single problem found while merging declarations.
type Diagnostic struct {
	Severity    Severity `json:"-"`
	Transformer string   `json:"transformer,omitempty"`
	ReadFrom    string   `json:"readFrom,omitempty"`
	Message     string   `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Severity, d.Message)
}

// Diagnostics is an ordered list of merge diagnostics.
type Diagnostics []Diagnostic

// Errors returns only the error diagnostics.
func (ds Diagnostics) Errors() Diagnostics { return ds.filter(SeverityError) }

// Warnings returns only the warning diagnostics.
func (ds Diagnostics) Warnings() Diagnostics { return ds.filter(SeverityWarning) }

// HasErrors reports whether any transformer was dropped as unusable.
func (ds Diagnostics) HasErrors() bool { return len(ds.Errors()) > 0 }

// Messages returns the message text of every diagnostic.
func (ds Diagnostics) Messages() []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Message
	}
	return out
}

func (ds Diagnostics) filter(s Severity) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// Log writes every diagnostic at the matching level.
func (ds Diagnostics) Log(logger *slog.Logger) {
	for _, d := range ds {
		level := slog.LevelWarn
		if d.Severity == SeverityError {
			level = slog.LevelError
		}
		logger.Log(context.Background(), level, d.Message, "transformer", d.Transformer, "read_from", d.ReadFrom)
	}
}
