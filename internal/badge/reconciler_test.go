package badge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/haven/internal/models"
)

type scriptedReader struct {
	mu      sync.Mutex
	results []result
	calls   int
}

type result struct {
	count int
	err   error
}

func (s *scriptedReader) Cart(context.Context) (models.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[s.calls]
	s.calls++
	return models.CartState{ItemCount: r.count}, r.err
}

type displayRecorder struct {
	states []State
}

func (d *displayRecorder) Render(s State) { d.states = append(d.states, s) }

func TestStateFor(t *testing.T) {
	assert.Equal(t, State{ItemCount: 0, Visible: false}, StateFor(0))
	assert.Equal(t, State{ItemCount: 3, Visible: true}, StateFor(3))
	assert.Equal(t, State{ItemCount: 0, Visible: false}, StateFor(-2))
}

func TestRefresh_AuthoritativeOverwrite(t *testing.T) {
	reader := &scriptedReader{results: []result{{count: 5}, {count: 2}}}
	disp := &displayRecorder{}
	r := NewReconciler(reader, disp, nil)

	r.Refresh(context.Background())
	assert.Equal(t, StateFor(5), r.State())

	r.Refresh(context.Background())
	assert.Equal(t, StateFor(2), r.State(), "second refetch must replace, not add")

	require.Len(t, disp.states, 2)
	assert.Equal(t, 2, disp.states[1].ItemCount)
}

func TestRefresh_ZeroHidesBadge(t *testing.T) {
	r := NewReconciler(&scriptedReader{results: []result{{count: 1}, {count: 0}}}, nil, nil)
	r.Refresh(context.Background())
	r.Refresh(context.Background())
	assert.False(t, r.State().Visible)
}

func TestRefresh_FailureKeepsPreviousState(t *testing.T) {
	reader := &scriptedReader{results: []result{{count: 4}, {err: errors.New("boom")}}}
	disp := &displayRecorder{}
	r := NewReconciler(reader, disp, nil)

	r.Refresh(context.Background())
	r.Refresh(context.Background())

	assert.Equal(t, StateFor(4), r.State())
	assert.Len(t, disp.states, 1, "failed refresh must not re-render")
}

// blockingReader lets the test decide the order in which responses arrive.
type blockingReader struct {
	mu    sync.Mutex
	gates []chan int
	calls chan int
}

func (b *blockingReader) Cart(context.Context) (models.CartState, error) {
	b.mu.Lock()
	gate := make(chan int)
	idx := len(b.gates)
	b.gates = append(b.gates, gate)
	b.mu.Unlock()
	b.calls <- idx
	return models.CartState{ItemCount: <-gate}, nil
}

func TestRefresh_LateOlderResponseIsDropped(t *testing.T) {
	reader := &blockingReader{calls: make(chan int, 2)}
	disp := &displayRecorder{}
	r := NewReconciler(reader, disp, nil)

	older := make(chan struct{})
	go func() { defer close(older); r.Refresh(context.Background()) }()
	<-reader.calls
	newer := make(chan struct{})
	go func() { defer close(newer); r.Refresh(context.Background()) }()
	<-reader.calls

	reader.gates[1] <- 3 // newer read lands first
	<-newer
	reader.gates[0] <- 1 // older read arrives late
	<-older

	assert.Equal(t, StateFor(3), r.State())
	assert.Len(t, disp.states, 1)
}

func TestReset_HidesWithoutRead(t *testing.T) {
	reader := &scriptedReader{results: []result{{count: 4}}}
	disp := &displayRecorder{}
	r := NewReconciler(reader, disp, nil)

	r.Refresh(context.Background())
	r.Reset()

	assert.Equal(t, StateFor(0), r.State())
	assert.Equal(t, 1, reader.calls)
	require.Len(t, disp.states, 2)
	assert.False(t, disp.states[1].Visible)
}
