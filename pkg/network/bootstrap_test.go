package network

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/itohio/gasmon/pkg/console"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitReady(t *testing.T, b *Bootstrapper) {
	t.Helper()
	select {
	case <-b.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("bootstrapper did not become ready within timeout")
	}
}

func TestBootstrapper_InitialState(t *testing.T) {
	b := New(NewMock(0), WithLogger(console.Nop{}))
	assert.Equal(t, Idle, b.State())

	select {
	case <-b.Ready():
		t.Fatal("ready before start")
	default:
	}
	require.NoError(t, b.Close())
}

func TestBootstrapper_ConnectsFirstTime(t *testing.T) {
	link := NewMock(0)
	b := New(link, WithLogger(console.Nop{}), WithName("lab"))
	defer b.Close()

	require.NoError(t, b.Start())
	waitReady(t, b)

	assert.Equal(t, Ready, b.State())
	assert.Equal(t, 1, link.Attempts())
}

func TestBootstrapper_ReconnectsUntilReady(t *testing.T) {
	link := NewMock(5)
	b := New(link, WithLogger(console.Nop{}))
	defer b.Close()

	require.NoError(t, b.Start())
	waitReady(t, b)

	assert.Equal(t, 6, link.Attempts())
}

func TestBootstrapper_WaitBlocksUntilReady(t *testing.T) {
	link := NewMock(3)
	b := New(link, WithLogger(console.Nop{}), WithReconnector(Backoff{Initial: 20 * time.Millisecond, Max: 20 * time.Millisecond}))
	defer b.Close()

	require.NoError(t, b.Start())

	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before the reconnect delays elapsed")
	case <-time.After(30 * time.Millisecond):
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return")
	}
	assert.Equal(t, 4, link.Attempts())
}

func TestBootstrapper_ReconnectsAfterReady(t *testing.T) {
	link := NewMock(0)
	b := New(link, WithLogger(console.Nop{}))
	defer b.Close()

	require.NoError(t, b.Start())
	waitReady(t, b)

	link.Drop()

	assert.Eventually(t, func() bool {
		return link.Attempts() == 2 && b.State() == Ready
	}, 2*time.Second, 5*time.Millisecond)

	// the one-shot signal stays closed
	select {
	case <-b.Ready():
	default:
		t.Fatal("ready signal reset")
	}
}

func TestBootstrapper_StartTwice(t *testing.T) {
	b := New(NewMock(0), WithLogger(console.Nop{}))
	defer b.Close()

	require.NoError(t, b.Start())
	assert.ErrorIs(t, b.Start(), ErrAlreadyStarted)
}

type failingLink struct{}

func (failingLink) Start(chan<- Event) error { return errors.New("no radio") }
func (failingLink) Connect() error           { return nil }
func (failingLink) Close() error             { return nil }

func TestBootstrapper_StartError(t *testing.T) {
	b := New(failingLink{}, WithLogger(console.Nop{}))
	err := b.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no radio")
	assert.Equal(t, Idle, b.State())
	require.NoError(t, b.Close())
}

// rejectingLink refuses the first few Connect requests outright.
type rejectingLink struct {
	mu     sync.Mutex
	events chan<- Event
	reject int
	calls  int
}

func (l *rejectingLink) Start(events chan<- Event) error {
	l.events = events
	events <- EventStarted
	return nil
}

func (l *rejectingLink) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.calls <= l.reject {
		return errors.New("busy")
	}
	go func() {
		l.events <- EventAssociated
		l.events <- EventGotIP
	}()
	return nil
}

func (l *rejectingLink) Close() error { return nil }

func TestBootstrapper_RetriesRejectedConnect(t *testing.T) {
	link := &rejectingLink{reject: 3}
	b := New(link, WithLogger(console.Nop{}))
	defer b.Close()

	require.NoError(t, b.Start())
	waitReady(t, b)

	link.mu.Lock()
	defer link.mu.Unlock()
	assert.Equal(t, 4, link.calls)
}

func TestBootstrapper_CloseDuringBackoff(t *testing.T) {
	link := NewMock(100)
	b := New(link, WithLogger(console.Nop{}), WithReconnector(Backoff{Initial: time.Hour}))

	require.NoError(t, b.Start())
	assert.Eventually(t, func() bool { return link.Attempts() == 1 }, time.Second, 5*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		b.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on reconnect delay")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "associated", Associated.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "got-ip", EventGotIP.String())
}
