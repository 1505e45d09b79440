package sap

import "errors"

var (
	// ErrMalformedAnnouncement indicates a SAP packet that cannot be used
	ErrMalformedAnnouncement = errors.New("malformed SAP announcement")

	// ErrStreamNotFound indicates no stream with the requested session name
	ErrStreamNotFound = errors.New("stream not found")

	// ErrInterfaceNotFound indicates an interface index with no IPv4 address
	ErrInterfaceNotFound = errors.New("interface not found")
)
