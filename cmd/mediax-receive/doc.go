// Command mediax-receive listens for SAP announcements and receives a
// DEF-STAN 00-82 raw video stream, logging per-frame statistics.
//
// With -name set and no explicit -port, the stream geometry is taken from the
// first live announcement of that session.
package main
