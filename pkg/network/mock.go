package network

import (
	"context"
	"errors"
	"sync"
)

var _ Link = (*Mock)(nil)

// Mock simulates a wireless link. The first failAttempts association requests
// end in EventDisconnected; later ones succeed with EventAssociated followed by
// EventGotIP.
type Mock struct {
	failAttempts int

	mu       sync.Mutex
	events   chan<- Event
	attempts int
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewMock creates a simulated link.
func NewMock(failAttempts int) *Mock {
	ctx, cancel := context.WithCancel(context.Background())
	return &Mock{
		failAttempts: failAttempts,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start records the event sink and reports EventStarted.
func (m *Mock) Start(events chan<- Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.events != nil {
		return errors.New("mock link already started")
	}
	m.events = events
	m.emit(EventStarted)
	return nil
}

// Connect simulates one association attempt.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.events == nil {
		return errors.New("mock link not started")
	}

	m.attempts++
	if m.attempts <= m.failAttempts {
		m.emit(EventDisconnected)
	} else {
		m.emit(EventAssociated, EventGotIP)
	}
	return nil
}

// Drop simulates losing the access point.
func (m *Mock) Drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events != nil {
		m.emit(EventDisconnected)
	}
}

// Attempts returns the number of association requests seen so far.
func (m *Mock) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Close stops pending event deliveries.
func (m *Mock) Close() error {
	m.cancel()
	m.wg.Wait()
	return nil
}

// emit delivers events in order on a separate goroutine, like a driver task
// would. Must be called with m.mu held.
func (m *Mock) emit(events ...Event) {
	sink := m.events
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for _, ev := range events {
			select {
			case sink <- ev:
			case <-m.ctx.Done():
				return
			}
		}
	}()
}
