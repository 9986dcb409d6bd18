// Package trip provides error handling for the dolly narrative orchestrator.
//
// The trip package uses stumbling metaphors for runtime errors - when the
// orchestrator meets a malformed input or a missing timer it "stumbles" and
// keeps going, when its configuration is broken it "falls" and refuses to mount.
package trip

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Trip types used across dolly.
const (
	TypeConfig     = "config"     // invalid panel registry or tuning table
	TypeInput      = "input"      // malformed input event (NaN, Inf)
	TypeTimer      = "timer"      // scheduler could not arm a timer
	TypeLock       = "lock"       // scroll lock token misuse
	TypeTransition = "transition" // completion hook failed mid-transition
	TypeRender     = "render"     // panel subscriber or frame capture failed
)

// Sentinel errors matched by errors.Is against any Trip of the same type.
var (
	ErrConfig          = errors.New("config error")
	ErrInputAnomaly    = errors.New("input anomaly")
	ErrTimerScheduling = errors.New("timer scheduling failure")
	ErrLock            = errors.New("scroll lock error")
	ErrTransition      = errors.New("transition error")
)

var sentinels = map[string]error{
	TypeConfig:     ErrConfig,
	TypeInput:      ErrInputAnomaly,
	TypeTimer:      ErrTimerScheduling,
	TypeLock:       ErrLock,
	TypeTransition: ErrTransition,
}

// Trip represents an orchestrator error with rich context.
//
// Error types:
//   - "config": registry or tuning validation, always a Fall
//   - "input": discarded input events, always a Stumble
//   - "timer": degraded scheduling, always a Stumble
//   - "lock": token released twice or by a stranger
//   - "transition": completion hook panicked, state was still applied
//
// Example usage:
//
//	err := trip.NewFall(trip.TypeConfig, "entry window must end before exit window",
//	    trip.Context{"panel": "map1", "entry": "[0.2 0.9]", "exit": "[0.8 1]"})
//
//	if errors.Is(err, trip.ErrConfig) {
//	    // refuse to mount
//	}
type Trip struct {
	Type      string    // Error category for systematic handling
	Message   string    // Human-readable description
	Context   Context   // Additional debugging information
	Timestamp time.Time // When the error occurred
	Severity  Severity  // How serious this error is
}

// Context provides structured debugging information for trips.
type Context map[string]interface{}

// Severity indicates how serious a trip is and how it should be handled.
type Severity int

const (
	// Stumble indicates a recoverable issue; the orchestrator keeps running.
	// Examples: NaN wheel delta, no timer support for decay
	Stumble Severity = iota

	// Error indicates a significant issue that was contained.
	// Examples: a panel subscriber panicked during a transition
	Error

	// Fall indicates the orchestrator must not mount.
	// Examples: non-contiguous panel orders, overlapping windows
	Fall
)

func (s Severity) String() string {
	switch s {
	case Stumble:
		return "stumble"
	case Error:
		return "error"
	case Fall:
		return "fall"
	default:
		return "unknown"
	}
}

// NewTrip creates a new trip with the current timestamp.
func NewTrip(errorType, message string, context Context) *Trip {
	return &Trip{
		Type:      errorType,
		Message:   message,
		Context:   context,
		Timestamp: time.Now(),
		Severity:  Error, // Default severity
	}
}

// NewStumble creates a new trip with Stumble severity.
func NewStumble(errorType, message string, context Context) *Trip {
	return NewTrip(errorType, message, context).WithSeverity(Stumble)
}

// NewFall creates a new trip with Fall severity.
func NewFall(errorType, message string, context Context) *Trip {
	return NewTrip(errorType, message, context).WithSeverity(Fall)
}

// Config reports an invalid registry or configuration table.
func Config(message string, context Context) *Trip {
	return NewFall(TypeConfig, message, context)
}

// InputAnomaly reports an input event that was discarded.
func InputAnomaly(message string, context Context) *Trip {
	return NewStumble(TypeInput, message, context)
}

// TimerFailure reports a timer that could not be armed.
func TimerFailure(message string, context Context) *Trip {
	return NewStumble(TypeTimer, message, context)
}

// WithSeverity sets the severity level for this error.
func (t *Trip) WithSeverity(severity Severity) *Trip {
	t.Severity = severity
	return t
}

// Error implements the error interface.
func (t *Trip) Error() string {
	return fmt.Sprintf("[%s:%s] %s", t.Type, t.Severity, t.Message)
}

// Is reports whether target is the sentinel error for this trip's type.
func (t *Trip) Is(target error) bool {
	sentinel, ok := sentinels[t.Type]
	return ok && sentinel == target
}

// CanRecover returns true if the orchestrator can continue despite this error.
func (t *Trip) CanRecover() bool {
	return t.Severity == Stumble
}

// IsFall returns true if this error must stop the orchestrator from mounting.
func (t *Trip) IsFall() bool {
	return t.Severity == Fall
}

// GetContext returns a specific context value if it exists.
func (t *Trip) GetContext(key string) (interface{}, bool) {
	if t.Context == nil {
		return nil, false
	}
	val, exists := t.Context[key]
	return val, exists
}

// DetailedString returns a comprehensive error description with context.
func (t *Trip) DetailedString() string {
	var details strings.Builder

	details.WriteString(fmt.Sprintf("[%s:%s] %s", t.Type, t.Severity, t.Message))
	details.WriteString(fmt.Sprintf("\n  Time: %s", t.Timestamp.Format("15:04:05.000")))

	if len(t.Context) > 0 {
		keys := make([]string, 0, len(t.Context))
		for key := range t.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		details.WriteString("\n  Context:")
		for _, key := range keys {
			details.WriteString(fmt.Sprintf("\n    %s: %v", key, t.Context[key]))
		}
	}

	return details.String()
}

// As extracts a *Trip from err, following wrapped errors.
func As(err error) (*Trip, bool) {
	var t *Trip
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}

// Handler collects trips raised by one component.
//
// Stumbles are kept apart from real trips so a noisy input device cannot hide
// a contained transition failure in the report.
type Handler struct {
	component string  // Component name (e.g., "orchestrator", "player")
	trips     []*Trip // Collected errors in chronological order
	stumbles  []*Trip // Collected minor issues in chronological order
	policy    *Policy // How to handle different error types
}

// Policy defines how different types and severities of errors should be handled.
type Policy struct {
	// StopOnFall determines if the component should stop on fall errors
	StopOnFall bool

	// MaxStumbles caps retained stumbles; older ones are dropped (0 = unlimited)
	MaxStumbles int

	// RecoverableTypes lists error types that are considered recoverable
	RecoverableTypes []string
}

// DefaultPolicy returns the policy used by the orchestrator.
func DefaultPolicy() *Policy {
	return &Policy{
		StopOnFall:       true,
		MaxStumbles:      256,
		RecoverableTypes: []string{TypeInput, TypeTimer, TypeRender},
	}
}

// NewHandler creates a new error handler for a specific component.
func NewHandler(component string, policy *Policy) *Handler {
	if policy == nil {
		policy = DefaultPolicy()
	}

	return &Handler{
		component: component,
		trips:     make([]*Trip, 0),
		stumbles:  make([]*Trip, 0),
		policy:    policy,
	}
}

// Record adds an error to the handler's collection.
func (h *Handler) Record(trip *Trip) {
	if trip.Severity != Stumble {
		h.trips = append(h.trips, trip)
		return
	}
	h.stumbles = append(h.stumbles, trip)
	if h.policy.MaxStumbles > 0 && len(h.stumbles) > h.policy.MaxStumbles {
		h.stumbles = h.stumbles[len(h.stumbles)-h.policy.MaxStumbles:]
	}
}

// ShouldContinue determines if the component can keep running.
func (h *Handler) ShouldContinue() bool {
	if !h.policy.StopOnFall {
		return true
	}
	for _, trip := range h.trips {
		if trip.IsFall() {
			return false
		}
	}
	return true
}

// HasTrips returns true if any errors (non-stumbles) have been recorded.
func (h *Handler) HasTrips() bool {
	return len(h.trips) > 0
}

// HasStumbles returns true if any stumbles have been recorded.
func (h *Handler) HasStumbles() bool {
	return len(h.stumbles) > 0
}

// Trips returns all recorded errors.
func (h *Handler) Trips() []*Trip {
	return h.trips
}

// Stumbles returns all recorded stumbles.
func (h *Handler) Stumbles() []*Trip {
	return h.stumbles
}

// CountType returns how many trips and stumbles of the given type were recorded.
func (h *Handler) CountType(errorType string) int {
	n := 0
	for _, t := range h.trips {
		if t.Type == errorType {
			n++
		}
	}
	for _, t := range h.stumbles {
		if t.Type == errorType {
			n++
		}
	}
	return n
}

// CanRecover returns true if the given error type is considered recoverable.
func (h *Handler) CanRecover(errorType string) bool {
	for _, recoverableType := range h.policy.RecoverableTypes {
		if recoverableType == errorType {
			return true
		}
	}
	return false
}

// Summary provides a concise overview of all errors and stumbles.
func (h *Handler) Summary() string {
	if len(h.trips) == 0 && len(h.stumbles) == 0 {
		return fmt.Sprintf("[%s] No issues", h.component)
	}

	return fmt.Sprintf("[%s] %d trips, %d stumbles",
		h.component, len(h.trips), len(h.stumbles))
}

// DetailedReport provides a comprehensive report of all issues.
func (h *Handler) DetailedReport() string {
	var report strings.Builder

	report.WriteString(fmt.Sprintf("=== %s Component Report ===\n", h.component))
	report.WriteString(h.Summary() + "\n")

	if len(h.trips) > 0 {
		report.WriteString("\nTrips:\n")
		for i, trip := range h.trips {
			report.WriteString(fmt.Sprintf("%d. %s\n", i+1, trip.DetailedString()))
		}
	}

	if len(h.stumbles) > 0 {
		report.WriteString("\nStumbles:\n")
		for i, stumble := range h.stumbles {
			report.WriteString(fmt.Sprintf("%d. %s\n", i+1, stumble.DetailedString()))
		}
	}

	return report.String()
}
