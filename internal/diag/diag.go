// Package diag implements the compiler's diagnostic sink: error and warning
// reporting with source locations, an error counter with a hard cap, and
// caret-underlined source excerpt formatting. User-facing diagnostics stay
// plain formatted strings; every emitted diagnostic is additionally streamed
// through logrus as the module's operational log.
package diag

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mirlang/mirc/internal/ast"
)

// Severity distinguishes error from warning diagnostics.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// CursorHint indicates where, relative to the offending token, the caret excerpt
// should point: before the token, at the token, or after it.
type CursorHint int

const (
	CursorWord CursorHint = iota
	CursorBefore
	CursorAfter
)

// Code enumerates the error categories, one per driver exit-code class.
type Code string

const (
	CodeUnknownSymbol      Code = "unknown-symbol"
	CodeDuplicateSymbol    Code = "duplicate-symbol"
	CodeInvalidType        Code = "invalid-type"
	CodeInvalidArgCount    Code = "invalid-arg-count"
	CodeMissingReturn      Code = "missing-return"
	CodeLibNotFound        Code = "lib-not-found"
	CodeSymbolNotFound     Code = "symbol-not-found"
	CodeExpectedFunc       Code = "expected-func"
	CodeExpectedType       Code = "expected-type"
	CodeInvalidExpr        Code = "invalid-expr"
	CodeInvalidCast        Code = "invalid-cast"
)

// Diagnostic is a single reported error or warning.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Loc      ast.Loc
	Message  string
	Hint     CursorHint
	// Secondary optionally points at a related location — e.g. the prior
	// declaration for a duplicate-symbol error, or the reference site for an
	// unknown-symbol error.
	Secondary *ast.Loc
	SecondMsg string
}

// maxErrors is the maximum number of errors the sink formats/logs before
// suppressing further emission while analysis continues to drain its queues.
const maxErrors = 10

// Sink collects diagnostics emitted during analysis.
type Sink struct {
	diags      []Diagnostic
	errorCount int
	NoWarn     bool
	log        *logrus.Logger
}

// NewSink creates an empty Sink. noWarn suppresses warning-severity diagnostics
// entirely.
func NewSink(noWarn bool) *Sink {
	return &Sink{NoWarn: noWarn, log: logrus.New()}
}

// Error reports an error diagnostic. Returns true if the message was not
// suppressed by the maxErrors cap.
func (s *Sink) Error(code Code, loc ast.Loc, hint CursorHint, format string, args ...interface{}) bool {
	s.errorCount++
	if s.errorCount > maxErrors {
		s.log.WithField("code", code).Debug("suppressed: error count exceeded maximum")
		return false
	}
	d := Diagnostic{Severity: SeverityError, Code: code, Loc: loc, Hint: hint, Message: fmt.Sprintf(format, args...)}
	s.diags = append(s.diags, d)
	s.log.WithFields(logrus.Fields{"code": code, "loc": loc.String()}).Error(d.Message)
	return true
}

// ErrorWithSecondary is Error plus a secondary location.
func (s *Sink) ErrorWithSecondary(code Code, loc ast.Loc, secondary ast.Loc, secondMsg, format string, args ...interface{}) bool {
	if !s.Error(code, loc, CursorWord, format, args...) {
		return false
	}
	s.diags[len(s.diags)-1].Secondary = &secondary
	s.diags[len(s.diags)-1].SecondMsg = secondMsg
	return true
}

// Warning reports a warning diagnostic unless NoWarn is set.
func (s *Sink) Warning(loc ast.Loc, format string, args ...interface{}) {
	if s.NoWarn {
		return
	}
	msg := fmt.Sprintf(format, args...)
	s.diags = append(s.diags, Diagnostic{Severity: SeverityWarning, Loc: loc, Message: msg})
	s.log.WithField("loc", loc.String()).Warn(msg)
}

// Merge folds another Sink's diagnostics into s, in the other sink's report
// order. Used by the parallel front-end, where each worker collects into its
// own Sink (Sink itself is not safe for concurrent use) and the driver merges
// after the pool joins.
func (s *Sink) Merge(o *Sink) {
	s.diags = append(s.diags, o.diags...)
	s.errorCount += o.errorCount
}

// ErrorCount returns the total number of error diagnostics reported, including
// those suppressed after maxErrors.
func (s *Sink) ErrorCount() int {
	return s.errorCount
}

// HasErrors reports whether any error-severity diagnostic was recorded.
func (s *Sink) HasErrors() bool {
	return s.errorCount > 0
}

// Diagnostics returns all recorded diagnostics in report order.
func (s *Sink) Diagnostics() []Diagnostic {
	return s.diags
}

// Format renders a Diagnostic as a caret-underlined excerpt against src, the full
// source text of the unit the diagnostic's Loc belongs to.
func Format(d Diagnostic, src string) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("[%s] %s:%d:%d: %s: %s\n", d.Code, d.Loc.Unit, d.Loc.Line, d.Loc.Column, d.Severity, d.Message))
	lines := strings.Split(src, "\n")
	if d.Loc.Line >= 1 && d.Loc.Line <= len(lines) {
		line := lines[d.Loc.Line-1]
		sb.WriteString(line)
		sb.WriteRune('\n')
		col := d.Loc.Column
		switch d.Hint {
		case CursorBefore:
			col--
		case CursorAfter:
			col += d.Loc.Len
		}
		if col < 1 {
			col = 1
		}
		sb.WriteString(strings.Repeat(" ", col-1))
		n := d.Loc.Len
		if n < 1 {
			n = 1
		}
		sb.WriteString(strings.Repeat("^", n))
		sb.WriteRune('\n')
	}
	if d.Secondary != nil {
		sb.WriteString(fmt.Sprintf("  %s: %s:%d:%d\n", d.SecondMsg, d.Secondary.Unit, d.Secondary.Line, d.Secondary.Column))
	}
	return sb.String()
}
