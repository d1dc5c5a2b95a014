package registry

import (
	"context"
	"errors"
	"testing"

	"llmproxy/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	BaseModule
	startErr  error
	healthErr error
	started   bool
	stopped   bool
	received  []string
}

func newFakeModule(id string) *fakeModule {
	return &fakeModule{BaseModule: NewBaseModule(id, id, "fake", "0.0.1")}
}

func (f *fakeModule) Start() error { f.started = true; return f.startErr }
func (f *fakeModule) Stop() error  { f.stopped = true; return nil }
func (f *fakeModule) Reset() error { return nil }
func (f *fakeModule) Cleanup() error { return nil }
func (f *fakeModule) HealthCheck(ctx context.Context) error { return f.healthErr }
func (f *fakeModule) GetMetrics() metrics.ModuleSnapshot     { return metrics.ModuleSnapshot{} }
func (f *fakeModule) OnMessage(from string, payload interface{}) error {
	f.received = append(f.received, from)
	return nil
}

func TestRegistry_StartStopOrdering(t *testing.T) {
	r := New()
	a := newFakeModule("a")
	b := newFakeModule("b")
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))
	var events []string
	r.Subscribe(func(e Event) { events = append(events, e.Type+":"+e.ModuleID) })

	require.NoError(t, r.Start())
	assert.True(t, a.started)
	assert.True(t, b.started)

	require.NoError(t, r.Stop())
	assert.True(t, a.stopped)
	assert.True(t, b.stopped)
	assert.Equal(t, []string{"pipelineStarted:a", "pipelineStarted:b", "moduleStatusChanged:b", "moduleStatusChanged:a"}, events)
}

func TestRegistry_StartHaltsOnFirstFailure(t *testing.T) {
	r := New()
	a := newFakeModule("a")
	b := newFakeModule("b")
	b.startErr = errors.New("boom")
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	err := r.Start()
	require.Error(t, err)
	assert.True(t, a.started)
	assert.True(t, b.started)
}

func TestRegistry_GetStatusReflectsHealthCheck(t *testing.T) {
	r := New()
	a := newFakeModule("a")
	require.NoError(t, r.Register(a))

	status, err := r.GetStatus(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, status)

	a.healthErr = errors.New("down")
	status, err = r.GetStatus(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, StatusUnhealthy, status)
}

func TestRegistry_ConfigureRejectsSecondCall(t *testing.T) {
	r := New()
	a := newFakeModule("a")
	require.NoError(t, r.Register(a))

	require.NoError(t, r.Configure("a", map[string]interface{}{"x": 1}))
	err := r.Configure("a", map[string]interface{}{"x": 2})
	require.Error(t, err)
}

func TestRegistry_SendToModuleRequiresConnection(t *testing.T) {
	r := New()
	a := newFakeModule("a")
	b := newFakeModule("b")
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	err := r.SendToModule("a", "b", "hello")
	require.Error(t, err)

	require.NoError(t, r.AddConnection("a", "b"))
	require.NoError(t, r.SendToModule("a", "b", "hello"))
	assert.Equal(t, []string{"a"}, b.received)

	require.NoError(t, r.SendToModule("b", "a", "hi back"))
	assert.Equal(t, []string{"b"}, a.received)
}

func TestRegistry_BroadcastToModules(t *testing.T) {
	r := New()
	a := newFakeModule("a")
	b := newFakeModule("b")
	c := newFakeModule("c")
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))
	require.NoError(t, r.Register(c))
	require.NoError(t, r.AddConnection("a", "b"))
	require.NoError(t, r.AddConnection("a", "c"))

	errs := r.BroadcastToModules("a", "ping")
	assert.Empty(t, errs)
	assert.Equal(t, []string{"a"}, b.received)
	assert.Equal(t, []string{"a"}, c.received)
}

func TestRegistry_EmitEventNotifiesSubscribers(t *testing.T) {
	r := New()
	var got []Event
	r.Subscribe(func(e Event) { got = append(got, e) })

	r.EmitEvent("pipelineStarted", "a", map[string]interface{}{"k": "v"})
	require.Len(t, got, 1)
	assert.Equal(t, "pipelineStarted", got[0].Type)
	assert.Equal(t, "a", got[0].ModuleID)
}
