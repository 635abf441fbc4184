package network

// LifecycleEvent is a connection lifecycle signal emitted by TransportSession.
type LifecycleEvent int

const (
	LifecycleConnecting LifecycleEvent = iota
	LifecycleConnected
	LifecycleReconnecting
	LifecycleReconnected
	LifecycleClosed
)

func (e LifecycleEvent) String() string {
	switch e {
	case LifecycleConnecting:
		return "connecting"
	case LifecycleConnected:
		return "connected"
	case LifecycleReconnecting:
		return "reconnecting"
	case LifecycleReconnected:
		return "reconnected"
	case LifecycleClosed:
		return "closed"
	default:
		return "unknown"
	}
}
