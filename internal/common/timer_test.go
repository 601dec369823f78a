package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimer(t *testing.T) {
	timer := NewNamedTimer("relayout")
	assert.Equal(t, "relayout", timer.Name())

	time.Sleep(10 * time.Millisecond)

	duration := timer.Stop()
	assert.GreaterOrEqual(t, duration, 10*time.Millisecond)
	assert.Equal(t, duration, timer.Duration())

	str := timer.String()
	assert.Contains(t, str, "relayout")
	assert.Contains(t, str, "ms")
}

func TestTimer_Unnamed(t *testing.T) {
	timer := NewTimer()
	d := timer.Stop()
	assert.Empty(t, timer.Name())
	assert.Equal(t, d.String(), timer.String())
}

func TestLaps(t *testing.T) {
	laps := StartLaps()
	time.Sleep(5 * time.Millisecond)
	first := laps.Lap("normalize")
	laps.Lap("infer")
	time.Sleep(5 * time.Millisecond)
	laps.Lap("normalize")

	assert.GreaterOrEqual(t, first, 5*time.Millisecond)
	assert.GreaterOrEqual(t, laps.Get("normalize"), 10*time.Millisecond)
	assert.Equal(t, time.Duration(0), laps.Get("missing"))
	assert.Equal(t, laps.Get("normalize")+laps.Get("infer"), laps.Total())

	m := laps.Map()
	assert.Len(t, m, 2)
	assert.Equal(t, laps.Get("infer"), m["infer"])
	assert.Contains(t, laps.String(), "infer=")
}
