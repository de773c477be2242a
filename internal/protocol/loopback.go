package protocol

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LoopbackDialer is a development adapter: it speaks no wire protocol
// and instead simulates the credential exchange locally. With
// PAIRLINK_LOOPBACK_AUTOSCAN=1 the challenge is "scanned" automatically
// after a short delay, which exercises the full lifecycle end to end
// without a real server.
//
// TODO: swap in a real protocol adapter behind Dialer once one is
// linked into the build.
type LoopbackDialer struct {
	// ScanDelay is how long the simulated user takes to scan. Zero means
	// never scan unless autoscan is enabled.
	ScanDelay time.Duration
}

// NewLoopbackDialer returns a dev dialer honoring the autoscan env knob.
func NewLoopbackDialer() *LoopbackDialer {
	d := &LoopbackDialer{}
	if os.Getenv("PAIRLINK_LOOPBACK_AUTOSCAN") == "1" {
		d.ScanDelay = 3 * time.Second
	}
	return d
}

// Dial implements Dialer.
func (d *LoopbackDialer) Dial(ctx context.Context, credentialDir string) (Socket, error) {
	sock := &loopbackSocket{
		events:  make(chan Event, 8),
		credDir: credentialDir,
	}

	nonce := make([]byte, 24)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	challenge := base64.StdEncoding.EncodeToString(nonce)

	go sock.run(challenge, d.ScanDelay)
	return sock, nil
}

type loopbackSocket struct {
	mu      sync.Mutex
	events  chan Event
	closed  bool
	credDir string
}

func (s *loopbackSocket) run(challenge string, scanDelay time.Duration) {
	s.emit(Event{Type: EventChallenge, Challenge: challenge})

	if scanDelay <= 0 {
		return
	}

	time.Sleep(scanDelay)

	identity := fmt.Sprintf("loopback:%d@local", time.Now().Unix())
	creds, _ := json.Marshal(map[string]interface{}{
		"me": map[string]string{"id": identity, "name": "loopback"},
	})
	_ = os.WriteFile(filepath.Join(s.credDir, "creds.json"), creds, 0600)

	s.emit(Event{Type: EventCredentialsChanged, Credentials: creds})
	s.emit(Event{Type: EventOpen, Identity: identity})
}

func (s *loopbackSocket) emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- e
}

func (s *loopbackSocket) Events() <-chan Event {
	return s.events
}

func (s *loopbackSocket) Send(context.Context, string, string, SendOptions) error {
	return nil
}

func (s *loopbackSocket) RequestPairingCode(_ context.Context, phone string) (string, error) {
	if phone == "" {
		return "", fmt.Errorf("pairing requires a phone number")
	}
	code := make([]byte, 4)
	if _, err := rand.Read(code); err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d-%04d", (int(code[0])<<8|int(code[1]))%10000, (int(code[2])<<8|int(code[3]))%10000), nil
}

func (s *loopbackSocket) Logout(context.Context) error {
	return s.Close()
}

func (s *loopbackSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}
