//go:build tinygo

package main

import (
	"sync"

	"github.com/itohio/gasmon/pkg/console"
	"github.com/itohio/gasmon/pkg/network"
	"tinygo.org/x/drivers/netlink"
)

// wifiLink adapts a netlink driver to network.Link. NetConnect blocks until
// the station has joined and leased an address, so it runs on its own
// goroutine and its outcome is reported as events.
type wifiLink struct {
	link   netlink.Netlinker
	params netlink.ConnectParams
	log    console.Logger

	mu     sync.Mutex
	events chan<- network.Event
	closed bool
}

var _ network.Link = (*wifiLink)(nil)

func newWiFiLink(link netlink.Netlinker, ssid, passphrase string, log console.Logger) *wifiLink {
	return &wifiLink{
		link: link,
		params: netlink.ConnectParams{
			Ssid:       ssid,
			Passphrase: passphrase,
		},
		log: log,
	}
}

func (l *wifiLink) Start(events chan<- network.Event) error {
	l.mu.Lock()
	l.events = events
	l.mu.Unlock()

	l.link.NetNotify(func(e netlink.Event) {
		if e == netlink.EventNetDown {
			l.emit(network.EventDisconnected)
		}
	})

	go l.emit(network.EventStarted)
	return nil
}

func (l *wifiLink) Connect() error {
	go func() {
		if err := l.link.NetConnect(&l.params); err != nil {
			l.log.Warnf("failed to join %s: %v", l.params.Ssid, err)
			l.emit(network.EventDisconnected)
			return
		}
		l.emit(network.EventAssociated)
		l.emit(network.EventGotIP)
	}()
	return nil
}

func (l *wifiLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.link.NetDisconnect()
	return nil
}

func (l *wifiLink) emit(ev network.Event) {
	l.mu.Lock()
	events, closed := l.events, l.closed
	l.mu.Unlock()
	if closed || events == nil {
		return
	}
	events <- ev
}
