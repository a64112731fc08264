package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// DefaultPollInterval is how often Interface samples the OS interface state.
const DefaultPollInterval = time.Second

var _ Link = (*Interface)(nil)

// ifaceStatus is what Interface observes about a network interface.
type ifaceStatus struct {
	up   bool // administratively up
	ipv4 bool // carries a non-loopback IPv4 address
}

// Interface is a Link backed by a host network interface (e.g. wlan0) whose
// association is owned by the operating system's supplicant. It reports
// EventAssociated when the interface is up, EventGotIP once it carries an IPv4
// address, and EventDisconnected when either is lost.
type Interface struct {
	name   string
	poll   time.Duration
	lookup func(name string) (ifaceStatus, error)

	mu     sync.Mutex
	last   ifaceStatus
	rearm  bool
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewInterface creates a link watching the named interface.
func NewInterface(name string, poll time.Duration) *Interface {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Interface{
		name:   name,
		poll:   poll,
		lookup: lookupInterface,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins watching the interface.
func (l *Interface) Start(events chan<- Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != nil {
		return errors.New("interface link already started")
	}
	if _, err := l.lookup(l.name); err != nil {
		return err
	}

	l.done = make(chan struct{})
	go l.watch(events)
	return nil
}

// Connect re-arms the watcher so the current state is reported again. The
// association itself is left to the operating system.
func (l *Interface) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rearm = true
	return nil
}

// Close stops the watcher.
func (l *Interface) Close() error {
	l.cancel()
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

func (l *Interface) watch(events chan<- Event) {
	defer close(l.done)

	if !l.send(events, EventStarted) {
		return
	}

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		l.check(events)

		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// check compares the current interface status with the last one reported and
// emits the transitions.
func (l *Interface) check(events chan<- Event) {
	status, err := l.lookup(l.name)
	if err != nil {
		status = ifaceStatus{}
	}

	l.mu.Lock()
	prev := l.last
	if l.rearm {
		prev = ifaceStatus{}
		l.rearm = false
	}
	l.last = status
	l.mu.Unlock()

	switch {
	case prev.up && !status.up, prev.ipv4 && !status.ipv4:
		l.send(events, EventDisconnected)
		return
	}
	if status.up && !prev.up {
		if !l.send(events, EventAssociated) {
			return
		}
	}
	if status.up && status.ipv4 && !prev.ipv4 {
		l.send(events, EventGotIP)
	}
}

func (l *Interface) send(events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-l.ctx.Done():
		return false
	}
}

func lookupInterface(name string) (ifaceStatus, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return ifaceStatus{}, fmt.Errorf("failed to find interface %s: %w", name, err)
	}

	status := ifaceStatus{up: iface.Flags&net.FlagUp != 0}

	addrs, err := iface.Addrs()
	if err != nil {
		return status, fmt.Errorf("failed to list addresses of %s: %w", name, err)
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip := ipNet.IP.To4(); ip != nil && !ip.IsLoopback() {
			status.ipv4 = true
			break
		}
	}

	return status, nil
}
