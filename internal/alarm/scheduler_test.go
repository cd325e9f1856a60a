package alarm

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fireCollector struct {
	mu    sync.Mutex
	fires []Fire
}

func (c *fireCollector) handle(f Fire) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fires = append(c.fires, f)
}

func (c *fireCollector) all() []Fire {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Fire(nil), c.fires...)
}

func newTestScheduler() (*Scheduler, *clock.Mock, *fireCollector) {
	clk := clock.NewMock()
	s := NewScheduler(clk)
	c := &fireCollector{}
	s.Subscribe(c.handle)
	return s, clk, c
}

func TestArmDeliversFireAtInstant(t *testing.T) {
	s, clk, c := newTestScheduler()

	at := clk.Now().Add(5 * time.Minute)
	s.Arm("sched-1", "med-1", at)
	assert.True(t, s.Armed("sched-1"))

	clk.Add(4 * time.Minute)
	assert.Empty(t, c.all())

	clk.Add(time.Minute)
	fires := c.all()
	require.Len(t, fires, 1)
	assert.Equal(t, "sched-1", fires[0].ScheduleID)
	assert.Equal(t, "med-1", fires[0].MedicationID)
	assert.Equal(t, at, fires[0].At)
	assert.False(t, s.Armed("sched-1"))
}

func TestRearmReplacesPriorTimer(t *testing.T) {
	s, clk, c := newTestScheduler()

	s.Arm("sched-1", "med-1", clk.Now().Add(time.Minute))
	s.Arm("sched-1", "med-1", clk.Now().Add(10*time.Minute))

	// Advancing past both instants must deliver exactly one fire, from the
	// replacement timer.
	clk.Add(time.Hour)
	fires := c.all()
	require.Len(t, fires, 1)
	assert.Equal(t, 10*time.Minute, fires[0].At.Sub(time.Unix(0, 0).UTC()))
}

func TestPastInstantFiresImmediately(t *testing.T) {
	s, clk, c := newTestScheduler()

	s.Arm("sched-1", "med-1", clk.Now().Add(-time.Hour))
	clk.Add(0)
	assert.Len(t, c.all(), 1)
}

func TestCancelIsIdempotent(t *testing.T) {
	s, clk, c := newTestScheduler()

	s.Cancel("never-armed")

	s.Arm("sched-1", "med-1", clk.Now().Add(time.Minute))
	s.Cancel("sched-1")
	s.Cancel("sched-1")
	assert.False(t, s.Armed("sched-1"))

	clk.Add(time.Hour)
	assert.Empty(t, c.all())
}

func TestIndependentSchedulesEachKeepOneTimer(t *testing.T) {
	s, clk, c := newTestScheduler()

	s.Arm("a", "med-a", clk.Now().Add(time.Minute))
	s.Arm("b", "med-b", clk.Now().Add(2*time.Minute))

	clk.Add(3 * time.Minute)
	fires := c.all()
	require.Len(t, fires, 2)
	assert.Equal(t, "a", fires[0].ScheduleID)
	assert.Equal(t, "b", fires[1].ScheduleID)
}

func TestCloseStopsEverything(t *testing.T) {
	s, clk, c := newTestScheduler()

	s.Arm("a", "med-a", clk.Now().Add(time.Minute))
	s.Close()
	s.Arm("b", "med-b", clk.Now().Add(time.Minute))

	clk.Add(time.Hour)
	assert.Empty(t, c.all())
	assert.False(t, s.Armed("a"))
	assert.False(t, s.Armed("b"))
}
