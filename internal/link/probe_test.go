package link

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchlet/chatbridge/internal/config"
	"github.com/searchlet/chatbridge/internal/core"
	"github.com/searchlet/chatbridge/internal/events"
	"github.com/searchlet/chatbridge/internal/logging"
)

type fakeEvaluator struct {
	mu      sync.Mutex
	results []evalResult
	calls   int
}

type evalResult struct {
	raw interface{}
	err error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ string) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	res := f.results[idx]
	return res.raw, res.err
}

func (f *fakeEvaluator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSink struct {
	mu      sync.Mutex
	state   core.ProcessState
	linked  bool
	label   string
	setHits int
}

func (f *fakeSink) SetLinked(linked bool, profileLabel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := f.linked != linked
	f.linked = linked
	f.label = profileLabel
	f.setHits++
	return changed
}

func (f *fakeSink) Status() core.ProcessState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func probeConfig() config.ProbeConfig {
	return config.ProbeConfig{
		StartupDelay: time.Millisecond,
		Interval:     5 * time.Millisecond,
		EvalTimeout:  100 * time.Millisecond,
	}
}

const (
	notLinkedJSON = `{"linked":false,"profile_label":""}`
	linkedJSON    = `{"linked":true,"profile_label":"Ada"}`
)

func TestCheckOnce_ParsesMarkerResult(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	eval := &fakeEvaluator{results: []evalResult{{raw: linkedJSON}}}
	sink := &fakeSink{state: core.ProcessState{Running: true, OwnerID: "o1"}}
	p := NewProbe(probeConfig(), eval, sink, bus, logging.NewNop())

	status := p.CheckOnce(context.Background())
	assert.True(t, status.Linked)
	assert.Equal(t, "Ada", status.ProfileLabel)
	assert.False(t, status.ObservedAt.IsZero())
}

func TestCheckOnce_UnreachableReturnsCached(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	eval := &fakeEvaluator{results: []evalResult{
		{raw: linkedJSON},
		{err: core.ErrUnreachable("connection refused")},
	}}
	sink := &fakeSink{}
	p := NewProbe(probeConfig(), eval, sink, bus, logging.NewNop())

	first := p.CheckOnce(context.Background())
	require.True(t, first.Linked)

	// Failure must not lose the last-known state.
	second := p.CheckOnce(context.Background())
	assert.True(t, second.Linked)
	assert.Equal(t, "Ada", second.ProfileLabel)
}

func TestCheckOnce_MalformedResultIsNotLinked(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	for _, raw := range []interface{}{nil, 42, "not json"} {
		eval := &fakeEvaluator{results: []evalResult{{raw: raw}}}
		p := NewProbe(probeConfig(), eval, &fakeSink{}, bus, logging.NewNop())
		assert.False(t, p.CheckOnce(context.Background()).Linked, "raw=%v", raw)
	}
}

func TestPoll_OneShotTransition(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	linkedCh := bus.SubscribePriority()

	eval := &fakeEvaluator{results: []evalResult{
		{raw: notLinkedJSON},
		{raw: notLinkedJSON},
		{raw: linkedJSON},
	}}
	sink := &fakeSink{state: core.ProcessState{Running: true, OwnerID: "o1"}}
	p := NewProbe(probeConfig(), eval, sink, bus, logging.NewNop())

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	select {
	case ev := <-linkedCh:
		linked := ev.(events.LinkEstablishedEvent)
		assert.Equal(t, "o1", linked.OwnerID())
		assert.Equal(t, "Ada", linked.ProfileLabel)
	case <-time.After(2 * time.Second):
		t.Fatal("link transition never reported")
	}

	sink.mu.Lock()
	assert.True(t, sink.linked)
	assert.Equal(t, 1, sink.setHits, "transition must be delivered exactly once")
	sink.mu.Unlock()

	// The poller stops itself after the transition.
	callsAfter := eval.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, callsAfter, eval.callCount(), "polling must stop after link")
}

func TestPoll_NoDuplicateEventAfterWebhookWins(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	linkedCh := bus.SubscribePriority()

	eval := &fakeEvaluator{results: []evalResult{{raw: linkedJSON}}}
	// The page-side webhook already reported the transition.
	sink := &fakeSink{
		state:  core.ProcessState{Running: true, OwnerID: "o1", Linked: true},
		linked: true,
	}
	p := NewProbe(probeConfig(), eval, sink, bus, logging.NewNop())

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	select {
	case ev := <-linkedCh:
		t.Fatalf("second link_established published: %+v", ev)
	case <-time.After(60 * time.Millisecond):
	}

	// The poller still stops: the transition it was waiting for happened.
	callsAfter := eval.callCount()
	require.Greater(t, callsAfter, 0)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, callsAfter, eval.callCount(), "polling must stop once linked")
}

func TestPoll_NoEventWhileProcessStopped(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	linkedCh := bus.Subscribe(events.TypeLinkEstablished)

	eval := &fakeEvaluator{results: []evalResult{{raw: linkedJSON}}}
	sink := &fakeSink{} // not running
	p := NewProbe(probeConfig(), eval, sink, bus, logging.NewNop())

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	select {
	case <-linkedCh:
		t.Fatal("must not report link while no process is running")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestStart_RejectsDoubleStart(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	eval := &fakeEvaluator{results: []evalResult{{raw: notLinkedJSON}}}
	p := NewProbe(probeConfig(), eval, &fakeSink{}, bus, logging.NewNop())

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()
	assert.Error(t, p.Start(context.Background()))
}

func TestReset_ClearsCachedState(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	eval := &fakeEvaluator{results: []evalResult{{raw: linkedJSON}}}
	p := NewProbe(probeConfig(), eval, &fakeSink{}, bus, logging.NewNop())

	p.CheckOnce(context.Background())
	require.True(t, p.Cached().Linked)

	p.Reset()
	assert.False(t, p.Cached().Linked)
	assert.Empty(t, p.Cached().ProfileLabel)
}
