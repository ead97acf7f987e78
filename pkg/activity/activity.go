// Package activity provides a thread-safe tracker for the named operations a
// component is performing. Flags are independent bits, not a mutually
// exclusive state enum: several can be active at once, each with its own
// timing record and optional detail text. State changes are published as
// notifications for UI consumption; delivery happens outside the lock so a
// slow subscriber can never stall the component.
package activity

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Flag is one bit in a component's activity mask.
type Flag uint32

// Idle is the empty mask.
const Idle Flag = 0

// Has reports whether all bits of other are set in f.
func (f Flag) Has(other Flag) bool {
	return f&other == other
}

// Verbal renders the raised bits of f using the given name table, low
// bits first. Bits without a name are rendered numerically.
func (f Flag) Verbal(names map[Flag]string) string {
	if f == Idle {
		return "Idle"
	}
	var parts []string
	for bit := Flag(1); bit != 0 && bit <= f; bit <<= 1 {
		if !f.Has(bit) {
			continue
		}
		if name, ok := names[bit]; ok {
			parts = append(parts, name)
		} else {
			parts = append(parts, fmt.Sprintf("0x%x", uint32(bit)))
		}
	}
	return strings.Join(parts, "|")
}

// Timing records when a flag was raised and, once cleared, for how long.
type Timing struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// Open reports whether the timing record has not been closed yet.
func (t *Timing) Open() bool {
	return t.End.IsZero()
}

// UpdateKind distinguishes start and end notifications.
type UpdateKind string

const (
	UpdateStart UpdateKind = "start"
	UpdateEnd   UpdateKind = "end"
)

// Update is the structured notification emitted on every state change.
type Update struct {
	Component string
	Kind      UpdateKind
	Message   string
	Details   []string
	Duration  time.Duration
}

// Notifier receives activity updates. Implementations must not block;
// the tracker calls Notify outside its lock but on the caller's goroutine.
type Notifier interface {
	Notify(Update)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Update)

// Notify implements Notifier.
func (f NotifierFunc) Notify(u Update) { f(u) }

// StartOptions modifies a single Start call.
type StartOptions struct {
	// ExistingOK makes Start a no-op when the flag is already active,
	// preserving the original timing record.
	ExistingOK bool

	// Label overrides the flag name in the notification message.
	Label string

	// Details are free-text annotations kept until the flag is cleared.
	Details []string
}

// Set tracks the activities of a single owning component. The zero value is
// not usable; construct with New. The owning component's name is an explicit,
// required parameter: it is never inferred from the call site.
type Set struct {
	component string
	names     map[Flag]string

	mu      sync.Mutex
	mask    Flag
	timings map[Flag]*Timing
	details map[Flag][]string

	notifier Notifier
	logger   zerolog.Logger
}

// New creates an activity set for the named component. The names map gives
// each flag its human-readable name; flags without an entry render in hex.
func New(component string, names map[Flag]string, logger zerolog.Logger) *Set {
	return &Set{
		component: component,
		names:     names,
		timings:   make(map[Flag]*Timing),
		details:   make(map[Flag][]string),
		logger:    logger.With().Str("component", component).Logger(),
	}
}

// WithNotifier attaches the notification sink and returns the set.
func (s *Set) WithNotifier(n Notifier) *Set {
	s.notifier = n
	return s
}

// Component returns the owning component's name.
func (s *Set) Component() string {
	return s.component
}

// Start raises the flag with default options.
func (s *Set) Start(f Flag) {
	s.StartWith(f, StartOptions{})
}

// StartWith atomically raises the flag, opens a timing record, stores the
// details and emits a start notification. When opts.ExistingOK is set and the
// flag is already active, nothing happens and the original timing survives.
func (s *Set) StartWith(f Flag, opts StartOptions) {
	s.mu.Lock()
	if opts.ExistingOK && s.mask.Has(f) {
		s.mu.Unlock()
		return
	}
	s.mask |= f
	s.timings[f] = &Timing{Start: time.Now()}
	if len(opts.Details) > 0 {
		s.details[f] = append([]string(nil), opts.Details...)
	}
	details := s.details[f]
	s.mu.Unlock()

	label := opts.Label
	if label == "" {
		label = s.name(f)
	}
	s.logger.Info().Str("activity", label).Msg("activity started")
	s.emit(Update{
		Component: s.component,
		Kind:      UpdateStart,
		Message:   label,
		Details:   details,
	})
}

// End clears the flag with no label override.
func (s *Set) End(f Flag) {
	s.EndWith(f, "")
}

// EndWith atomically clears the flag, closes its timing record and emits an
// end notification carrying the formatted duration and any stored details.
// Clearing a flag that is not active is a no-op. A flag active without a
// timing record is an internal inconsistency: the bit is still cleared, a
// warning is logged and no notification is emitted.
func (s *Set) EndWith(f Flag, label string) {
	s.mu.Lock()
	if !s.mask.Has(f) {
		s.mu.Unlock()
		return
	}
	s.mask &^= f

	timing, ok := s.timings[f]
	if !ok {
		delete(s.details, f)
		s.mu.Unlock()
		s.logger.Warn().
			Str("activity", s.name(f)).
			Msg("activity cleared without a timing record")
		return
	}
	timing.End = time.Now()
	timing.Duration = timing.End.Sub(timing.Start)
	details := s.details[f]
	delete(s.details, f)
	s.mu.Unlock()

	if label == "" {
		label = s.name(f)
	}
	s.logger.Info().
		Str("activity", label).
		Dur("duration", timing.Duration).
		Msg("activity ended")
	s.emit(Update{
		Component: s.component,
		Kind:      UpdateEnd,
		Message:   label,
		Details:   details,
		Duration:  timing.Duration,
	})
}

// IsActive reports whether the flag is currently raised.
func (s *Set) IsActive(f Flag) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mask.Has(f)
}

// IsIdle reports whether no flag is raised.
func (s *Set) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mask == Idle
}

// Mask returns the current bitmask.
func (s *Set) Mask() Flag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mask
}

// Timing returns a copy of the flag's timing record, if one exists.
func (s *Set) Timing(f Flag) (Timing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timings[f]
	if !ok {
		return Timing{}, false
	}
	return *t, true
}

// Verbal returns the ordered names of all currently raised flags, or nil
// when idle. Intended for status reporting and logging, not control flow.
func (s *Set) Verbal() []string {
	s.mu.Lock()
	mask := s.mask
	s.mu.Unlock()

	if mask == Idle {
		return nil
	}

	flags := make([]Flag, 0, len(s.names))
	for f := range s.names {
		if f != Idle && mask.Has(f) {
			flags = append(flags, f)
		}
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })

	names := make([]string, 0, len(flags))
	for _, f := range flags {
		names = append(names, s.names[f])
	}
	return names
}

// String renders the active flag names joined by '|', or "Idle".
func (s *Set) String() string {
	names := s.Verbal()
	if len(names) == 0 {
		return "Idle"
	}
	return strings.Join(names, "|")
}

func (s *Set) name(f Flag) string {
	if n, ok := s.names[f]; ok {
		return n
	}
	return fmt.Sprintf("0x%x", uint32(f))
}

func (s *Set) emit(u Update) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(u)
}
