// Package common provides timing and memory helpers shared by the conversion
// session and the benchmark harness.
package common

import (
	"fmt"
	"strings"
	"time"
)

// Timer measures one named interval.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// NewNamedTimer creates a new timer with the given name.
func NewNamedTimer(name string) *Timer {
	return &Timer{
		name:  name,
		start: time.Now(),
	}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string {
	return t.name
}

func (t *Timer) String() string {
	if t.name != "" {
		return fmt.Sprintf("%s: %v", t.name, t.duration)
	}
	return t.duration.String()
}

// Laps records consecutive named stages. Each Lap call closes the stage that
// started at the previous Lap (or at StartLaps).
type Laps struct {
	last  time.Time
	names []string
	durs  []time.Duration
}

// StartLaps starts the first stage now.
func StartLaps() *Laps {
	return &Laps{last: time.Now()}
}

// Lap closes the current stage under name and starts the next one.
func (l *Laps) Lap(name string) time.Duration {
	now := time.Now()
	d := now.Sub(l.last)
	l.last = now
	l.names = append(l.names, name)
	l.durs = append(l.durs, d)
	return d
}

// Get returns the summed duration of all stages recorded under name.
func (l *Laps) Get(name string) time.Duration {
	var d time.Duration
	for i, n := range l.names {
		if n == name {
			d += l.durs[i]
		}
	}
	return d
}

// Total returns the sum of all recorded stages.
func (l *Laps) Total() time.Duration {
	var d time.Duration
	for _, v := range l.durs {
		d += v
	}
	return d
}

// Map returns the stages keyed by name.
func (l *Laps) Map() map[string]time.Duration {
	m := make(map[string]time.Duration, len(l.names))
	for i, n := range l.names {
		m[n] += l.durs[i]
	}
	return m
}

func (l *Laps) String() string {
	parts := make([]string, len(l.names))
	for i, n := range l.names {
		parts[i] = fmt.Sprintf("%s=%v", n, l.durs[i])
	}
	return strings.Join(parts, " ")
}
