package network

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send and Invoke while no connection is open.
	ErrNotConnected = errors.New("not connected")
	// ErrInvocationTimeout is returned when no completion arrives within the invoke timeout.
	ErrInvocationTimeout = errors.New("invocation timed out")
	// ErrConnectionLost fails invocations that were pending when the connection dropped.
	ErrConnectionLost = errors.New("connection lost")
	// ErrTransportClosed is returned once the transport has been closed.
	ErrTransportClosed = errors.New("transport closed")
)

// ErrConnectionClosedByServer is returned when the server closes the websocket
type ErrConnectionClosedByServer struct {
	Code   int
	Reason string
}

func (e *ErrConnectionClosedByServer) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed by server (%d)", e.Code)
	}
	return fmt.Sprintf("connection closed by server (%d): %s", e.Code, e.Reason)
}

// ErrConnectionClosedByClient is returned when the websocket was closed locally
type ErrConnectionClosedByClient struct{}

func (e *ErrConnectionClosedByClient) Error() string {
	return "connection closed by client"
}

// InvocationError carries the error a server method reported in its completion.
type InvocationError struct {
	Method  string
	Message string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invocation %s failed: %s", e.Method, e.Message)
}
