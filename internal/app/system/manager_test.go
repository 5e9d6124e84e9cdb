package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayline/chathub/pkg/logger"
)

type fakeService struct {
	name     string
	startErr error
	stopErr  error
	events   *[]string
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Start(context.Context) error {
	*f.events = append(*f.events, "start:"+f.name)
	return f.startErr
}

func (f *fakeService) Stop(context.Context) error {
	*f.events = append(*f.events, "stop:"+f.name)
	return f.stopErr
}

func TestManagerStartsInOrderStopsInReverse(t *testing.T) {
	var events []string
	m := NewManager(logger.Nop())
	m.Register(&fakeService{name: "a", events: &events})
	m.Register(&fakeService{name: "b", events: &events})

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop(ctx))

	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, events)
}

func TestManagerStartFailureRollsBack(t *testing.T) {
	var events []string
	m := NewManager(logger.Nop())
	m.Register(&fakeService{name: "a", events: &events})
	m.Register(&fakeService{name: "b", startErr: errors.New("boom"), events: &events})
	m.Register(&fakeService{name: "c", events: &events})

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b")

	// a was started and must be stopped; c never ran.
	assert.Equal(t, []string{"start:a", "start:b", "stop:a"}, events)
}

func TestManagerStopReportsFirstErrorButStopsAll(t *testing.T) {
	var events []string
	m := NewManager(logger.Nop())
	m.Register(&fakeService{name: "a", events: &events})
	m.Register(&fakeService{name: "b", stopErr: errors.New("boom"), events: &events})

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))

	err := m.Stop(ctx)
	require.Error(t, err)
	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, events)
}

func TestManagerStopTwice(t *testing.T) {
	var events []string
	m := NewManager(logger.Nop())
	m.Register(&fakeService{name: "a", events: &events})

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.Stop(ctx))

	assert.Equal(t, []string{"start:a", "stop:a"}, events)
}
