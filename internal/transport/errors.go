package transport

import "errors"

var (
	// ErrRetryExhausted is returned when a segment goes unacked through
	// config.RetryCeiling retransmissions: the peer is presumed dead.
	ErrRetryExhausted = errors.New("transport: retry ceiling exceeded, connection abandoned")

	// ErrEndOfStream is returned by Receive once the peer's FIN has been
	// seen, and by Send/Receive on a connection torn down locally.
	ErrEndOfStream = errors.New("transport: connection closed, end of stream")

	// ErrTransportClosed is returned by Accept once the transport has been
	// shut down and no further inbound connections will arrive.
	ErrTransportClosed = errors.New("transport: transport is shut down")
)
