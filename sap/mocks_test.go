package sap

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// mockPacketConn records every datagram written to it. Reads block until the
// deadline or Close.
type mockPacketConn struct {
	mu       sync.Mutex
	written  [][]byte
	writeErr error
	closed   chan struct{}
	once     sync.Once
	deadline time.Time

	// When gate is set, the first WriteTo closes entered and then waits for
	// gate to be closed before recording its packet.
	gate     chan struct{}
	entered  chan struct{}
	gateUsed atomic.Bool
}

// newGatedPacketConn returns a mock whose first write is held until the
// gate is closed.
func newGatedPacketConn() *mockPacketConn {
	m := newMockPacketConn()
	m.gate = make(chan struct{})
	m.entered = make(chan struct{})
	return m
}

func newMockPacketConn() *mockPacketConn {
	return &mockPacketConn{closed: make(chan struct{})}
}

func (m *mockPacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	m.mu.Lock()
	d := time.Until(m.deadline)
	m.mu.Unlock()
	if d <= 0 {
		d = time.Millisecond
	}
	select {
	case <-m.closed:
		return 0, nil, net.ErrClosed
	case <-time.After(d):
		return 0, nil, timeoutError{}
	}
}

func (m *mockPacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	if m.gate != nil && m.gateUsed.CompareAndSwap(false, true) {
		close(m.entered)
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.written = append(m.written, append([]byte(nil), p...))
	return len(p), nil
}

func (m *mockPacketConn) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *mockPacketConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9875}
}

func (m *mockPacketConn) SetDeadline(t time.Time) error { return m.SetReadDeadline(t) }

func (m *mockPacketConn) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	m.deadline = t
	m.mu.Unlock()
	return nil
}

func (m *mockPacketConn) SetWriteDeadline(time.Time) error { return nil }

// packets returns the parsed datagrams written so far.
func (m *mockPacketConn) packets() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.written...)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeInterfaces returns a fixed interface list.
func fakeInterfaces(addrs ...string) InterfaceLister {
	return func() ([]InterfaceAddr, error) {
		out := make([]InterfaceAddr, 0, len(addrs))
		for i, a := range addrs {
			out = append(out, InterfaceAddr{Name: "eth" + string(rune('0'+i)), IP: net.ParseIP(a).To4()})
		}
		return out, nil
	}
}
