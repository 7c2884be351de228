package container

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockfighter-mm/infrastructure/logger"
)

type recordingComponent struct {
	name     string
	startErr error
	log      *[]string
}

func (r *recordingComponent) Start(ctx context.Context) error {
	*r.log = append(*r.log, "start:"+r.name)
	return r.startErr
}

func (r *recordingComponent) Stop() error {
	*r.log = append(*r.log, "stop:"+r.name)
	return nil
}

func (r *recordingComponent) Health() error { return nil }

func TestLifecycleStartStopOrder(t *testing.T) {
	var log []string
	m := NewLifecycleManager()
	m.Register(&recordingComponent{name: "a", log: &log})
	m.Register(&recordingComponent{name: "b", log: &log})

	require.NoError(t, m.StartAll(context.Background()))
	require.NoError(t, m.StopAll())
	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, log)
}

func TestLifecycleRollbackOnStartFailure(t *testing.T) {
	var log []string
	m := NewLifecycleManager()
	m.Register(&recordingComponent{name: "a", log: &log})
	m.Register(&recordingComponent{name: "b", log: &log, startErr: errors.New("boom")})
	m.Register(&recordingComponent{name: "c", log: &log})

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"start:a", "start:b", "stop:a"}, log)
}

func TestGoroutineComponentStopsOnCancel(t *testing.T) {
	started := make(chan struct{})
	g := newGoroutineComponent("loop", logger.NewNop(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	assert.Error(t, g.Health())
	require.NoError(t, g.Start(context.Background()))
	<-started
	assert.NoError(t, g.Health())
	require.NoError(t, g.Stop())
}

func TestGoroutineComponentUnhealthyAfterExit(t *testing.T) {
	g := newGoroutineComponent("broken", logger.NewNop(), func(ctx context.Context) error {
		return errors.New("dial failed")
	})
	require.NoError(t, g.Start(context.Background()))
	require.Eventually(t, func() bool { return g.Health() != nil }, time.Second, 10*time.Millisecond)
	assert.Contains(t, g.Health().Error(), "dial failed")
	require.NoError(t, g.Stop())
}

func TestHTTPServerComponent(t *testing.T) {
	h := &httpServerComponent{
		name:    "metrics_server",
		handler: http.NotFoundHandler(),
		addr:    "127.0.0.1:0",
		logger:  logger.NewNop(),
	}
	assert.Error(t, h.Health())
	require.NoError(t, h.Start(context.Background()))
	assert.NoError(t, h.Health())
	require.NoError(t, h.Stop())
	assert.Error(t, h.Health())
}
