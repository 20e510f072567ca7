package lifecycle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		token   string
		want    State
		wantErr bool
	}{
		{"starting", Starting, false},
		{"updating", Updating, false},
		{"ready", Ready, false},
		{" ready\n", Ready, false},
		{"READY", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := Parse(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTracker_StartsStarting(t *testing.T) {
	tr := NewTracker(nil)
	assert.Equal(t, Starting, tr.State())

	// Rebuild bookkeeping before bootstrap does not leave starting.
	tr.Begin("a")
	assert.Equal(t, Starting, tr.State())
	tr.End("a")

	tr.MarkReady()
	assert.Equal(t, Ready, tr.State())
}

func TestTracker_AggregateAcrossIndexes(t *testing.T) {
	tr := NewTracker(nil)
	tr.MarkReady()

	tr.Begin("a")
	assert.Equal(t, Updating, tr.State())
	assert.Equal(t, 1, tr.InFlight("a"))
	assert.Equal(t, 0, tr.InFlight("b"), "unaffected index keeps its own record")

	tr.Begin("b")
	tr.End("a")
	assert.Equal(t, Updating, tr.State(), "any index updating means updating")

	tr.End("b")
	assert.Equal(t, Ready, tr.State())
}

func TestTracker_OverlappingRebuildsSameIndex(t *testing.T) {
	tr := NewTracker(nil)
	tr.MarkReady()

	tr.Begin("a")
	tr.Begin("a")
	assert.Equal(t, 2, tr.InFlight("a"))

	tr.End("a")
	assert.Equal(t, Updating, tr.State(), "second rebuild still in flight")

	tr.End("a")
	assert.Equal(t, Ready, tr.State())
	assert.Equal(t, 0, tr.InFlight("a"))
}

func TestTracker_EndWithoutBegin(t *testing.T) {
	tr := NewTracker(nil)
	tr.MarkReady()
	tr.End("a")
	assert.Equal(t, Ready, tr.State())
	assert.Equal(t, 0, tr.InFlight("a"))
}

func TestTracker_ChangeNotifications(t *testing.T) {
	var (
		mu      sync.Mutex
		changes [][2]State
	)
	tr := NewTracker(func(old, new State) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, [2]State{old, new})
	})

	tr.MarkReady()
	tr.Begin("a")
	tr.Begin("a") // no aggregate change
	tr.End("a")   // no aggregate change
	tr.End("a")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][2]State{
		{Starting, Ready},
		{Ready, Updating},
		{Updating, Ready},
	}, changes)
}

func TestTracker_ConcurrentUse(t *testing.T) {
	tr := NewTracker(nil)
	tr.MarkReady()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Begin("a")
			_ = tr.State()
			tr.End("a")
		}()
	}
	wg.Wait()

	assert.Equal(t, Ready, tr.State())
}

func TestTracker_TransitionCausedDuringDelivery(t *testing.T) {
	var changes [][2]State
	var tr *Tracker
	tr = NewTracker(func(old, new State) {
		changes = append(changes, [2]State{old, new})
		if new == Updating {
			// the rebuild finishes before this observer returns
			tr.End("a")
		}
	})

	tr.MarkReady()
	tr.Begin("a")

	assert.Equal(t, Ready, tr.State())
	assert.Equal(t, [][2]State{
		{Starting, Ready},
		{Ready, Updating},
		{Updating, Ready},
	}, changes)
}

func TestTracker_ConcurrentNotificationsChain(t *testing.T) {
	var (
		mu      sync.Mutex
		changes [][2]State
	)
	tr := NewTracker(func(old, new State) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, [2]State{old, new})
	})
	tr.MarkReady()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "a"
			if i%2 == 1 {
				id = "b"
			}
			tr.Begin(id)
			tr.End(id)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, changes)
	for i := 1; i < len(changes); i++ {
		assert.Equal(t, changes[i-1][1], changes[i][0], "transition %d does not follow its predecessor", i)
	}
	assert.Equal(t, Ready, changes[len(changes)-1][1])
	assert.Equal(t, Ready, tr.State())
}
