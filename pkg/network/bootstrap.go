// Package network brings up a station-mode wireless link and blocks callers
// until an IP address has been obtained.
package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/itohio/gasmon/pkg/console"
)

// DefaultEventBuffer is the capacity of the link event channel.
const DefaultEventBuffer = 16

// ErrAlreadyStarted is returned by Start when called twice.
var ErrAlreadyStarted = errors.New("network: already started")

// Link is a platform wireless driver in station mode.
//
// Start brings the radio up and must deliver EventStarted on events once the
// link may associate; further events follow as the link changes state.
// Connect requests one association attempt and reports the outcome through
// events, not through its return value, unless the request itself could not
// be issued.
type Link interface {
	Start(events chan<- Event) error
	Connect() error
	Close() error
}

// Bootstrapper drives a Link from Idle to Ready and reconnects whenever the
// link reports a disconnect.
type Bootstrapper struct {
	link   Link
	policy Reconnector
	log    console.Logger
	name   string

	events    chan Event
	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.RWMutex
	state   State
	attempt int
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithReconnector replaces the default Immediate reconnect policy.
func WithReconnector(r Reconnector) Option {
	return func(b *Bootstrapper) {
		if r != nil {
			b.policy = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l console.Logger) Option {
	return func(b *Bootstrapper) { b.log = console.OrStd(l) }
}

// WithName sets the network name used in status messages (usually the SSID).
func WithName(name string) Option {
	return func(b *Bootstrapper) { b.name = name }
}

// New creates a Bootstrapper for link.
func New(link Link, opts ...Option) *Bootstrapper {
	ctx, cancel := context.WithCancel(context.Background())

	b := &Bootstrapper{
		link:   link,
		policy: Immediate{},
		log:    console.Std{},
		events: make(chan Event, DefaultEventBuffer),
		ready:  make(chan struct{}),
		state:  Idle,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start moves to Connecting, starts the link and begins handling its events.
func (b *Bootstrapper) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrAlreadyStarted
	}

	if err := b.link.Start(b.events); err != nil {
		return fmt.Errorf("failed to start link: %w", err)
	}
	b.started = true
	b.state = Connecting

	go b.run()

	return nil
}

// Wait blocks until the link reaches Ready for the first time. There is no
// timeout: if the network never comes up, Wait never returns.
func (b *Bootstrapper) Wait() {
	<-b.ready
}

// Ready is closed the first time the link reaches Ready.
func (b *Bootstrapper) Ready() <-chan struct{} {
	return b.ready
}

// State returns the current connection state.
func (b *Bootstrapper) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Close stops event handling and closes the link.
func (b *Bootstrapper) Close() error {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()

	b.cancel()
	if started {
		<-b.done
	}
	return b.link.Close()
}

func (b *Bootstrapper) run() {
	defer close(b.done)

	for {
		select {
		case <-b.ctx.Done():
			return
		case ev := <-b.events:
			b.handle(ev)
		}
	}
}

func (b *Bootstrapper) handle(ev Event) {
	b.log.Debugf("wifi event: %s", ev)

	switch ev {
	case EventStarted:
		b.setState(Connecting)
		if err := b.link.Connect(); err != nil {
			b.log.Warnf("wifi connect request failed: %v", err)
			b.reconnect()
		}
	case EventDisconnected:
		b.setState(Connecting)
		b.reconnect()
	case EventAssociated:
		b.setState(Associated)
	case EventGotIP:
		b.mu.Lock()
		b.state = Ready
		b.attempt = 0
		b.mu.Unlock()
		b.readyOnce.Do(func() {
			b.log.Infof("connected to Wi-Fi %s", b.name)
			close(b.ready)
		})
	}
}

// reconnect issues association requests until one is accepted by the link.
// The outcome of an accepted request arrives later as an event.
func (b *Bootstrapper) reconnect() {
	for {
		b.mu.Lock()
		b.attempt++
		attempt := b.attempt
		b.mu.Unlock()

		if d := b.policy.Delay(attempt); d > 0 {
			b.log.Debugf("wifi reconnect attempt %d in %s", attempt, d)
			t := time.NewTimer(d)
			select {
			case <-b.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}

		err := b.link.Connect()
		if err == nil {
			return
		}
		b.log.Warnf("wifi reconnect attempt %d failed: %v", attempt, err)

		if b.ctx.Err() != nil {
			return
		}
	}
}

func (b *Bootstrapper) setState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}
