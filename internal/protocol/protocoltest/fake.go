// Package protocoltest provides scriptable fakes for the protocol
// adapter contract, used by orchestrator and sweeper tests.
package protocoltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/pairlink/core/internal/protocol"
)

// SentMessage records one Send call on a FakeSocket.
type SentMessage struct {
	To      string
	Content string
	Opts    protocol.SendOptions
}

// FakeSocket is a scriptable protocol.Socket. Tests push events with
// Emit and script call outcomes through the error queues.
type FakeSocket struct {
	mu     sync.Mutex
	events chan protocol.Event
	closed bool

	// SendErrs is consumed one per Send call; nil entries mean success.
	SendErrs []error
	// PairingCode is returned by RequestPairingCode once PairingErrs is
	// exhausted.
	PairingCode string
	// PairingErrs is consumed one per RequestPairingCode call.
	PairingErrs []error
	// LogoutErr is returned by Logout.
	LogoutErr error

	Sent        []SentMessage
	PairingReqs []string
	LoggedOut   bool
	Closed      bool
}

// NewFakeSocket returns a socket with a buffered event stream.
func NewFakeSocket() *FakeSocket {
	return &FakeSocket{events: make(chan protocol.Event, 16)}
}

// Emit pushes an event to the socket's stream. Events emitted after
// Close are dropped.
func (s *FakeSocket) Emit(e protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- e
}

// Events implements protocol.Socket.
func (s *FakeSocket) Events() <-chan protocol.Event {
	return s.events
}

// Send implements protocol.Socket.
func (s *FakeSocket) Send(_ context.Context, to, content string, opts protocol.SendOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if len(s.SendErrs) > 0 {
		err = s.SendErrs[0]
		s.SendErrs = s.SendErrs[1:]
	}
	if err != nil {
		return err
	}

	s.Sent = append(s.Sent, SentMessage{To: to, Content: content, Opts: opts})
	return nil
}

// RequestPairingCode implements protocol.Socket.
func (s *FakeSocket) RequestPairingCode(_ context.Context, phone string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.PairingReqs = append(s.PairingReqs, phone)

	if len(s.PairingErrs) > 0 {
		err := s.PairingErrs[0]
		s.PairingErrs = s.PairingErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return s.PairingCode, nil
}

// Logout implements protocol.Socket.
func (s *FakeSocket) Logout(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoggedOut = true
	return s.LogoutErr
}

// Close implements protocol.Socket. The event channel is closed exactly
// once.
func (s *FakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.Closed = true
		close(s.events)
	}
	return nil
}

// SentContents returns the content of every recorded Send.
func (s *FakeSocket) SentContents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Sent))
	for i, m := range s.Sent {
		out[i] = m.Content
	}
	return out
}

// FakeDialer hands out a scripted sequence of sockets.
type FakeDialer struct {
	mu sync.Mutex

	// Sockets are returned in order, one per Dial.
	Sockets []*FakeSocket
	// DialErrs is consumed one per Dial call before a socket is handed
	// out; nil entries mean success.
	DialErrs []error

	// Dials records the credential directory of each Dial call.
	Dials []string
}

// NewFakeDialer returns a dialer that serves the given sockets in order.
func NewFakeDialer(sockets ...*FakeSocket) *FakeDialer {
	return &FakeDialer{Sockets: sockets}
}

// Dial implements protocol.Dialer.
func (d *FakeDialer) Dial(_ context.Context, credentialDir string) (protocol.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Dials = append(d.Dials, credentialDir)

	if len(d.DialErrs) > 0 {
		err := d.DialErrs[0]
		d.DialErrs = d.DialErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	if len(d.Sockets) == 0 {
		return nil, fmt.Errorf("protocoltest: no sockets left to dial")
	}
	sock := d.Sockets[0]
	d.Sockets = d.Sockets[1:]
	return sock, nil
}

// DialCount returns how many Dial calls the dialer has served.
func (d *FakeDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Dials)
}
