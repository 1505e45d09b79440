// Package stream defines the types shared by every video transport: the stream
// description (Info) exchanged between transports and SAP, the socket endpoint
// bookkeeping (Port), the transport lifecycle (State) and the Payloader and
// Depayloader interfaces.
//
// # Lifecycle
//
// Every transport follows the same four calls:
//
//	p.SetStreamInfo(info)
//	p.Open()   // Closed -> Open
//	p.Start()  // Open|Stopped -> Started
//	p.Stop()   // Started -> Stopped
//	p.Close()  // any -> Closed
//
// Open fails with ErrNotConfigured until the stream settings are known, and
// wraps socket failures in an *OpError matching ErrSocket. Callers that cannot
// continue without a socket treat that as fatal.
//
// # Receiving
//
// Receive returns ErrTimeout when no complete frame arrived in time. This is a
// normal outcome, not a failure of the transport.
package stream
