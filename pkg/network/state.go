package network

// State is the bootstrapper's connection state.
type State int

const (
	Idle State = iota
	Connecting
	Associated
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Associated:
		return "associated"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// Event is a link-level notification delivered asynchronously by a Link.
type Event int

const (
	// EventStarted is sent once the station interface is up and may associate.
	EventStarted Event = iota
	// EventAssociated is sent when the station joins the access point.
	EventAssociated
	// EventDisconnected is sent when association fails or is lost.
	EventDisconnected
	// EventGotIP is sent when an IPv4 lease has been obtained.
	EventGotIP
)

func (e Event) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventAssociated:
		return "associated"
	case EventDisconnected:
		return "disconnected"
	case EventGotIP:
		return "got-ip"
	}
	return "unknown"
}
