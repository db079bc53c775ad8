package cpp

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// SourceChangeEvent describes a transition on the source stack.
type SourceChangeEvent string

const (
	SourcePush    SourceChangeEvent = "push"
	SourcePop     SourceChangeEvent = "pop"
	SourceSuspend SourceChangeEvent = "suspend"
	SourceResume  SourceChangeEvent = "resume"
)

// Listener receives diagnostics and source transitions. A non-nil error
// returned from HandleWarning or HandleError aborts the current Token call.
//
// Without a listener every warning and error fails the Token call.
type Listener interface {
	HandleWarning(src Source, line, column int, msg string) error
	HandleError(src Source, line, column int, msg string) error
	HandleSourceChange(src Source, event SourceChangeEvent)
}

// ErrNoInput is returned by Token when no input was added.
var ErrNoInput = errors.New("no input sources")

// Error is a diagnostic escalated to a failure.
type Error struct {
	Loc     SourceLoc
	Msg     string
	Warning bool
}

func (e *Error) Error() string {
	kind := "error"
	if e.Warning {
		kind = "warning"
	}
	if e.Loc.File == "" && e.Loc.Line <= 0 {
		return kind + ": " + e.Msg
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", e.Loc.File, e.Loc.Line, e.Loc.Column, kind, e.Msg)
}

// InternalError reports a broken invariant in the preprocessor itself.
// It is never passed to a Listener.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Msg
}

// Diagnostic is a recorded warning or error.
type Diagnostic struct {
	Loc     SourceLoc
	Msg     string
	Warning bool
}

func (d Diagnostic) String() string {
	return (&Error{Loc: d.Loc, Msg: d.Msg, Warning: d.Warning}).Error()
}

// DiagnosticCollector is a Listener that records and logs diagnostics and
// lets processing continue.
type DiagnosticCollector struct {
	Log         logrus.FieldLogger
	Diagnostics []Diagnostic

	errors   int
	warnings int
}

// NewDiagnosticCollector creates a collector logging to log. A nil log
// discards log output.
func NewDiagnosticCollector(log logrus.FieldLogger) *DiagnosticCollector {
	if log == nil {
		log = discardLogger()
	}
	return &DiagnosticCollector{Log: log}
}

func (c *DiagnosticCollector) record(src Source, line, column int, msg string, warning bool) {
	name := ""
	if src != nil {
		name = src.Name()
	}
	d := Diagnostic{Loc: SourceLoc{File: name, Line: line, Column: column}, Msg: msg, Warning: warning}
	c.Diagnostics = append(c.Diagnostics, d)
	entry := c.Log.WithFields(logrus.Fields{
		"file":   name,
		"line":   line,
		"column": column,
	})
	if warning {
		c.warnings++
		entry.Warn(msg)
	} else {
		c.errors++
		entry.Error(msg)
	}
}

func (c *DiagnosticCollector) HandleWarning(src Source, line, column int, msg string) error {
	c.record(src, line, column, msg, true)
	return nil
}

func (c *DiagnosticCollector) HandleError(src Source, line, column int, msg string) error {
	c.record(src, line, column, msg, false)
	return nil
}

func (c *DiagnosticCollector) HandleSourceChange(src Source, event SourceChangeEvent) {
	if src == nil {
		return
	}
	c.Log.WithField("event", string(event)).Debugf("source %s", src.Name())
}

// Errors returns the number of errors seen.
func (c *DiagnosticCollector) Errors() int { return c.errors }

// Warnings returns the number of warnings seen.
func (c *DiagnosticCollector) Warnings() int { return c.warnings }

// Err combines all recorded errors, or returns nil if there were none.
func (c *DiagnosticCollector) Err() error {
	var err error
	for _, d := range c.Diagnostics {
		if !d.Warning {
			err = multierr.Append(err, &Error{Loc: d.Loc, Msg: d.Msg})
		}
	}
	return err
}
