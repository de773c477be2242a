// Package orchestrator drives each session through the credential
// exchange state machine: dial, challenge, authenticate, finalize, and
// the bounded reconnect loop in between. It is the single writer of the
// active ownership table; sweeps and the API layer only ever see the
// persisted registry.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pairlink/core/config"
	"github.com/pairlink/core/errors"
	"github.com/pairlink/core/internal/credstore"
	"github.com/pairlink/core/internal/notify"
	"github.com/pairlink/core/internal/protocol"
	"github.com/pairlink/core/internal/registry"
	"github.com/pairlink/core/logging"
	"github.com/sirupsen/logrus"
)

// Orchestrator owns the active in-memory session table and the per
// session state machines.
type Orchestrator struct {
	cfg    *config.Config
	dialer protocol.Dialer
	reg    *registry.Registry
	creds  *credstore.Store
	hub    *notify.Hub
	logger *logrus.Entry

	mu     sync.Mutex
	active map[string]*session
}

// New creates an Orchestrator.
func New(cfg *config.Config, dialer protocol.Dialer, reg *registry.Registry, creds *credstore.Store, hub *notify.Hub) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		dialer: dialer,
		reg:    reg,
		creds:  creds,
		hub:    hub,
		logger: logging.NewLogger("orchestrator"),
		active: make(map[string]*session),
	}
}

// CreateResult is the synchronous answer to a creation request.
type CreateResult struct {
	ID             string `json:"id"`
	ChallengeImage string `json:"challenge_image,omitempty"`
	PairingCode    string `json:"pairing_code,omitempty"`
}

// CreateQR starts a QR-mode session and blocks until the first
// challenge is issued, the attempt terminally fails, or the QR window
// elapses.
func (o *Orchestrator) CreateQR(ctx context.Context) (*CreateResult, error) {
	return o.create(ctx, uuid.NewString(), registry.ModeQR, "")
}

// CreatePairing starts a pairing-mode session for the given phone
// number and blocks until a pairing code is obtained or the attempt
// fails.
func (o *Orchestrator) CreatePairing(ctx context.Context, phone string) (*CreateResult, error) {
	if phone == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "pairing requires a phone number")
	}
	return o.create(ctx, uuid.NewString(), registry.ModePairing, phone)
}

func (o *Orchestrator) create(ctx context.Context, id string, mode registry.Mode, phone string) (*CreateResult, error) {
	pairing := mode == registry.ModePairing

	sessCtx, cancel := context.WithTimeout(context.Background(), o.cfg.ConnectTimeout(pairing))

	sess := &session{
		id:        id,
		mode:      mode,
		phone:     phone,
		createdAt: time.Now().UTC(),
		cancel:    cancel,
		status:    registry.StatusInit,
		result:    make(chan outcome, 1),
	}

	// Reserve the table slot before any slow I/O so concurrent requests
	// cannot exceed the ceiling or double-register an id.
	o.mu.Lock()
	if len(o.active) >= o.cfg.MaxSessions {
		o.mu.Unlock()
		cancel()
		return nil, errors.CapacityExceeded(o.cfg.MaxSessions)
	}
	if _, exists := o.active[id]; exists {
		o.mu.Unlock()
		cancel()
		return nil, errors.New(errors.ErrCodeInternal, "session id already active").WithDetail("session", id)
	}
	o.active[id] = sess
	o.mu.Unlock()

	credDir, err := o.creds.Allocate(id)
	if err != nil {
		o.evict(sess)
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to allocate credential directory")
	}
	sess.credDir = credDir

	record := &registry.Session{
		ID:        id,
		Mode:      mode,
		Status:    registry.StatusInit,
		Phone:     phone,
		CreatedAt: sess.createdAt,
		ExpiresAt: sess.createdAt.Add(o.cfg.SessionTTL.Duration),
	}
	if err := o.reg.Upsert(record); err != nil {
		o.evictWithDir(sess)
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to register session")
	}

	socket, err := o.dialer.Dial(sessCtx, credDir)
	if err != nil {
		o.evictWithDir(sess)
		if derr := o.reg.Delete(id); derr != nil {
			o.logger.WithError(derr).WithField("session", id).Warn("Failed to remove registry record")
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to open protocol socket")
	}

	o.mu.Lock()
	if sess.released {
		// Stop, reap or shutdown finished the session while the dial was
		// in flight. The fresh socket never entered the table, so it is
		// ours to close.
		o.mu.Unlock()
		_ = socket.Close()
		out := <-sess.result
		return nil, out.err
	}
	sess.socket = socket
	o.mu.Unlock()

	o.logger.WithFields(logrus.Fields{"session": id, "mode": mode}).Info("Session created")

	go o.pump(sessCtx, sess)
	if pairing {
		go o.requestPairingCode(sessCtx, sess)
	}

	out := <-sess.result
	if out.err != nil {
		return nil, out.err
	}

	result := &CreateResult{ID: id, PairingCode: out.code}
	if out.challenge != "" {
		image, err := challengeImage(out.challenge)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to render challenge")
		}
		result.ChallengeImage = image
	}
	return result, nil
}

// evict removes a session from the active table before it ever had a
// socket. Used on early creation failures.
func (o *Orchestrator) evict(sess *session) {
	o.mu.Lock()
	sess.released = true
	delete(o.active, sess.id)
	o.mu.Unlock()
	sess.cancel()
}

func (o *Orchestrator) evictWithDir(sess *session) {
	o.evict(sess)
	if err := o.creds.Remove(sess.id); err != nil {
		o.logger.WithError(err).WithField("session", sess.id).Warn("Failed to remove credential directory")
	}
}

// StopResult distinguishes the outcomes of a stop request.
type StopResult string

const (
	StopStopped   StopResult = "stopped"
	StopProtected StopResult = "protected"
)

// Stop tears a session down: best-effort logout on any live socket,
// then removal of the registry record and credential directory.
//
// A good/permanent session is refused without force: callers must not
// be able to accidentally destroy a completed session. The refusal is a
// distinguishable result carrying ErrCodeProtected.
func (o *Orchestrator) Stop(id string, force bool) (StopResult, error) {
	record, err := o.reg.Get(id)
	if err != nil && !errors.Is(err, errors.ErrCodeNotFound) {
		return "", err
	}

	o.mu.Lock()
	sess := o.active[id]
	o.mu.Unlock()

	if record == nil && sess == nil {
		return "", errors.SessionNotFound(id)
	}

	if record != nil && record.Permanent && !force {
		return StopProtected, errors.SessionProtected(id)
	}

	if sess != nil {
		o.finish(sess, finishOpts{
			status:     registry.StatusFailed,
			logout:     true,
			deliverErr: errors.New(errors.ErrCodeInternal, "session was stopped").WithDetail("session", id),
		})
	} else {
		if err := o.reg.Delete(id); err != nil {
			o.logger.WithError(err).WithField("session", id).Warn("Failed to remove registry record")
		}
		if err := o.creds.Remove(id); err != nil {
			o.logger.WithError(err).WithField("session", id).Warn("Failed to remove credential directory")
		}
	}

	o.logger.WithField("session", id).Info("Session stopped")
	return StopStopped, nil
}

// ActiveCount returns the number of sessions in the active table.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// ActiveSessions returns a snapshot of the active table.
func (o *Orchestrator) ActiveSessions() []ActiveInfo {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]ActiveInfo, 0, len(o.active))
	for _, sess := range o.active {
		out = append(out, ActiveInfo{
			ID:        sess.id,
			Mode:      sess.mode,
			Status:    sess.status,
			CreatedAt: sess.createdAt,
			Attempts:  sess.attempts,
			Connected: sess.connected,
		})
	}
	return out
}

// ReapIdle force-stops every active session older than maxAge that
// never reached CONNECTED. It returns how many sessions were reaped.
// This is the unscanned/abandoned sweep's entry point: it inspects the
// in-memory table, not the persisted registry.
func (o *Orchestrator) ReapIdle(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	o.mu.Lock()
	var stale []*session
	for _, sess := range o.active {
		if !sess.connected && sess.createdAt.Before(cutoff) {
			stale = append(stale, sess)
		}
	}
	o.mu.Unlock()

	for _, sess := range stale {
		o.logger.WithFields(logrus.Fields{
			"session": sess.id,
			"age":     time.Since(sess.createdAt).Round(time.Second),
		}).Info("Reaping unscanned session")
		o.finish(sess, finishOpts{
			status:     registry.StatusTimedOut,
			notify:     notify.KindFailed,
			payload:    "abandoned",
			deliverErr: errors.ConnectionTimeout(sess.id, maxAge.String()),
		})
	}
	return len(stale)
}

// Shutdown closes every active socket without touching registry records
// or credential directories; in-flight sessions simply resume as new
// attempts after restart.
func (o *Orchestrator) Shutdown() {
	type target struct {
		sess   *session
		socket protocol.Socket
	}

	o.mu.Lock()
	targets := make([]target, 0, len(o.active))
	for _, sess := range o.active {
		// Marking the session released makes every pending pump and
		// timeout path a no-op instead of a cleanup. The socket handle is
		// captured under the lock; a concurrent create may still be
		// writing it.
		sess.released = true
		targets = append(targets, target{sess: sess, socket: sess.socket})
	}
	o.active = make(map[string]*session)
	o.mu.Unlock()

	for _, tg := range targets {
		tg.sess.cancel()
		if tg.socket != nil {
			_ = tg.socket.Close()
		}
		tg.sess.deliver(outcome{err: errors.New(errors.ErrCodeInternal, "daemon shutting down")})
	}
}
