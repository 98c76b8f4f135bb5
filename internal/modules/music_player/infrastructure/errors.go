package infrastructure

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by the Lavalink node and node manager.
var (
	// ErrHandshakeRejected is returned when a node refuses the socket handshake.
	ErrHandshakeRejected = errors.New("node rejected the handshake")

	// ErrRetryBudgetExhausted is reported when a node could not be reconnected
	// within its retry amount.
	ErrRetryBudgetExhausted = errors.New("reconnect attempts exhausted")

	// ErrNodeDestroyed is returned for operations on a destroyed node.
	ErrNodeDestroyed = errors.New("node is destroyed")

	// ErrNodeConnecting is returned when a connection attempt is already running.
	ErrNodeConnecting = errors.New("node is already connecting")

	// ErrNoSession is returned for session scoped calls before the node is ready.
	ErrNoSession = errors.New("node has no session")

	// ErrNodeNotFound is returned when no node has the requested id.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when adding a node whose id is taken.
	ErrDuplicateNode = errors.New("node id already registered")

	// ErrNoUsableNode is returned when no connected node can serve a request.
	ErrNoUsableNode = errors.New("no usable node")

	// ErrRequestTimeout, ErrRequestStatus and ErrRequestTransport classify a RequestError.
	ErrRequestTimeout   = errors.New("request timed out")
	ErrRequestStatus    = errors.New("request failed with status")
	ErrRequestTransport = errors.New("request transport failure")
)

// RequestError is returned by failed REST calls to a node.
type RequestError struct {
	Method  string
	Path    string
	Status  int
	Message string

	// Kind is one of ErrRequestTimeout, ErrRequestStatus or ErrRequestTransport.
	Kind error
	Err  error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %v", e.Method, e.Path, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " %d", e.Status)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RequestError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
