package orchestrator

import (
	"context"
	"time"

	"github.com/pairlink/core/errors"
	"github.com/pairlink/core/internal/notify"
	"github.com/pairlink/core/internal/protocol"
	"github.com/pairlink/core/internal/registry"
	"github.com/sirupsen/logrus"
)

// pump is the per-session event loop. All state-machine transitions for
// one session happen here, in socket-event arrival order.
func (o *Orchestrator) pump(ctx context.Context, sess *session) {
	for {
		o.mu.Lock()
		released := sess.released
		socket := sess.socket
		o.mu.Unlock()

		if released {
			return
		}

		select {
		case <-ctx.Done():
			o.timeout(sess)
			return

		case event, ok := <-socket.Events():
			if !ok {
				// Stream ended without a close event. If the session is
				// already terminal this is our own post-completion close;
				// otherwise treat it as a transient disconnect.
				o.mu.Lock()
				done := sess.released || sess.status.Terminal()
				o.mu.Unlock()
				if done {
					return
				}
				event = protocol.Event{Type: protocol.EventClose, Reason: protocol.ReasonConnectionClosed}
			}

			switch event.Type {
			case protocol.EventChallenge:
				if stop := o.handleChallenge(sess, event); stop {
					return
				}
			case protocol.EventCredentialsChanged:
				o.handleCredentialsChanged(sess, event)
			case protocol.EventOpen:
				o.handleOpen(ctx, sess, event)
				return
			case protocol.EventClose:
				if stop := o.handleClose(ctx, sess, event); stop {
					return
				}
			}
		}
	}
}

// handleChallenge enforces the first-challenge-wins rule for QR mode.
// The returned bool tells the pump to stop.
func (o *Orchestrator) handleChallenge(sess *session, event protocol.Event) bool {
	if sess.mode == registry.ModePairing {
		// Pairing mode requests its code actively; pushed challenges are
		// not part of that flow.
		return false
	}

	o.mu.Lock()
	first := !sess.challenged
	sess.challenged = true
	if first {
		sess.status = registry.StatusChallengeIssued
	}
	o.mu.Unlock()

	if first {
		o.updateRecord(sess.id, func(rec *registry.Session) {
			rec.Status = registry.StatusChallengeIssued
		})
		o.hub.Publish(sess.id, notify.KindChallengeIssued, event.Challenge)
		sess.deliver(outcome{challenge: event.Challenge})
		return false
	}

	// A second challenge on the same attempt means the first was not
	// consumed in time. Tear down rather than confuse the client with a
	// stale code.
	o.logger.WithField("session", sess.id).Info("Challenge re-issued before scan, expiring session")
	o.finish(sess, finishOpts{
		status:     registry.StatusFailed,
		notify:     notify.KindChallengeExpired,
		deliverErr: errors.ChallengeExpired(sess.id),
	})
	return true
}

// handleCredentialsChanged persists new durable state from the adapter.
// The first one before open is the user scanning the challenge.
func (o *Orchestrator) handleCredentialsChanged(sess *session, event protocol.Event) {
	o.mu.Lock()
	firstScan := !sess.connected && sess.status != registry.StatusAuthenticating
	if firstScan {
		sess.status = registry.StatusAuthenticating
	}
	o.mu.Unlock()

	if len(event.Credentials) > 0 {
		if err := o.creds.WriteCredentials(sess.id, event.Credentials); err != nil {
			o.logger.WithError(err).WithField("session", sess.id).Error("Failed to persist credentials")
		}
	}

	if firstScan {
		o.updateRecord(sess.id, func(rec *registry.Session) {
			rec.Status = registry.StatusAuthenticating
		})
		o.hub.Publish(sess.id, notify.KindScanned, "")
	}
}

// handleOpen transitions to CONNECTED and runs the finalization
// handshake. The pump exits afterwards either way: success releases the
// session, failure tears it down.
func (o *Orchestrator) handleOpen(ctx context.Context, sess *session, event protocol.Event) {
	o.mu.Lock()
	sess.connected = true
	sess.attempts = 0
	sess.status = registry.StatusConnected
	socket := sess.socket
	o.mu.Unlock()

	o.updateRecord(sess.id, func(rec *registry.Session) {
		rec.Status = registry.StatusConnected
		rec.Identity = event.Identity
		rec.Attempts = 0
	})

	o.logger.WithFields(logrus.Fields{"session": sess.id, "identity": event.Identity}).Info("Session connected, finalizing")
	o.finalize(ctx, sess, socket, event.Identity)
}

// finalize proves the session can actually deliver messages: a machine
// readable session id as a best-effort disappearing notice, then the
// human-readable welcome. Both must succeed before the session is
// trusted as good.
func (o *Orchestrator) finalize(ctx context.Context, sess *session, socket protocol.Socket, identity string) {
	o.mu.Lock()
	sess.status = registry.StatusFinalizing
	o.mu.Unlock()
	o.updateRecord(sess.id, func(rec *registry.Session) {
		rec.Status = registry.StatusFinalizing
	})

	err := socket.Send(ctx, identity, sess.id, protocol.SendOptions{Ephemeral: true})
	if err == nil {
		err = socket.Send(ctx, identity, o.cfg.Finalize.WelcomeText, protocol.SendOptions{})
	}

	if err != nil {
		// A connection that cannot prove live delivery is not trusted.
		o.logger.WithError(err).WithField("session", sess.id).Warn("Finalization failed, discarding session")
		o.finish(sess, finishOpts{
			status:     registry.StatusFailed,
			notify:     notify.KindFailed,
			payload:    "finalization failed",
			deliverErr: errors.FinalizationFailed(sess.id, err),
		})
		return
	}

	o.complete(sess, socket, identity)
}

// complete marks the session good, strips the credential directory down
// to the durable file, and releases the socket after a short grace.
func (o *Orchestrator) complete(sess *session, socket protocol.Socket, identity string) {
	o.mu.Lock()
	if sess.released {
		o.mu.Unlock()
		return
	}
	sess.released = true
	sess.status = registry.StatusCompleted
	delete(o.active, sess.id)
	o.mu.Unlock()

	if _, err := o.creds.Prune(sess.id); err != nil {
		o.logger.WithError(err).WithField("session", sess.id).Warn("Failed to prune credential directory")
	}

	now := time.Now().UTC()
	o.updateRecord(sess.id, func(rec *registry.Session) {
		rec.Status = registry.StatusCompleted
		rec.Good = true
		rec.Permanent = true
		rec.Identity = identity
		rec.Attempts = 0
		rec.ExpiresAt = now.Add(o.cfg.PermanentTTL.Duration)
	})

	o.hub.Publish(sess.id, notify.KindConnected, identity)
	sess.deliver(outcome{})
	sess.cancel()

	// The credential material persists independently of the live socket.
	grace := o.cfg.Finalize.CloseGrace.Duration
	time.AfterFunc(grace, func() {
		if err := socket.Close(); err != nil {
			o.logger.WithError(err).WithField("session", sess.id).Debug("Post-completion close failed")
		}
	})

	o.logger.WithFields(logrus.Fields{"session": sess.id, "identity": identity}).Info("Session completed")
}

// handleClose classifies the reason and either retries, tears down, or
// ignores an expected post-completion close. The returned bool tells
// the pump to stop.
func (o *Orchestrator) handleClose(ctx context.Context, sess *session, event protocol.Event) bool {
	o.mu.Lock()
	connected := sess.connected
	terminal := sess.status.Terminal()
	attempts := sess.attempts
	o.mu.Unlock()

	if terminal {
		// Expected: the orchestrator itself closes the socket after a
		// successful finalization.
		return true
	}

	if connected {
		// Closed between open and completion: the finalization step did
		// not run to completion.
		o.finish(sess, finishOpts{
			status:     registry.StatusFailed,
			notify:     notify.KindFailed,
			payload:    "connection lost during finalization",
			deliverErr: errors.FinalizationFailed(sess.id, errors.New(errors.ErrCodeTransientDisconnect, string(event.Reason))),
		})
		return true
	}

	if protocol.Classify(event.Reason) == protocol.ClassAuthoritative {
		o.logger.WithFields(logrus.Fields{"session": sess.id, "reason": event.Reason}).Info("Authoritative rejection, cleaning up")
		o.finish(sess, finishOpts{
			status:     registry.StatusFailed,
			notify:     notify.KindFailed,
			payload:    string(event.Reason),
			deliverErr: errors.AuthRejected(sess.id, string(event.Reason)),
		})
		return true
	}

	if attempts >= o.cfg.Reconnect.MaxAttempts {
		o.logger.WithFields(logrus.Fields{"session": sess.id, "attempts": attempts}).Warn("Reconnect ceiling exceeded, abandoning session")
		o.finish(sess, finishOpts{
			status:     registry.StatusFailed,
			notify:     notify.KindFailed,
			payload:    "reconnect attempts exhausted",
			deliverErr: errors.ReconnectExhausted(sess.id, attempts),
		})
		return true
	}

	return o.retry(ctx, sess, event.Reason)
}

// retry waits the backoff delay and opens a fresh socket against the
// same credential directory. The returned bool tells the pump to stop.
func (o *Orchestrator) retry(ctx context.Context, sess *session, reason protocol.ReasonCode) bool {
	o.mu.Lock()
	sess.attempts++
	attempt := sess.attempts
	sess.status = registry.StatusReconnecting
	// A fresh socket starts a fresh attempt; its first challenge is
	// legitimate, not a re-issue.
	sess.challenged = false
	old := sess.socket
	o.mu.Unlock()

	_ = old.Close()

	o.updateRecord(sess.id, func(rec *registry.Session) {
		rec.Status = registry.StatusReconnecting
		rec.Attempts = attempt
	})

	o.logger.WithFields(logrus.Fields{
		"session": sess.id,
		"reason":  reason,
		"attempt": attempt,
	}).Info("Transient disconnect, reconnecting")

	// Simply-scaled backoff: base delay times the attempt number.
	delay := o.cfg.Reconnect.Delay.Duration * time.Duration(attempt)
	select {
	case <-ctx.Done():
		o.timeout(sess)
		return true
	case <-time.After(delay):
	}

	socket, err := o.dialer.Dial(ctx, sess.credDir)
	if err != nil {
		o.logger.WithError(err).WithField("session", sess.id).Warn("Reconnect dial failed, abandoning session")
		o.finish(sess, finishOpts{
			status:     registry.StatusFailed,
			notify:     notify.KindFailed,
			payload:    "reconnect failed",
			deliverErr: errors.Wrap(err, errors.ErrCodeTransientDisconnect, "reconnect dial failed"),
		})
		return true
	}

	o.mu.Lock()
	if sess.released {
		o.mu.Unlock()
		_ = socket.Close()
		return true
	}
	sess.socket = socket
	sess.status = registry.StatusAuthenticating
	o.mu.Unlock()

	o.updateRecord(sess.id, func(rec *registry.Session) {
		rec.Status = registry.StatusAuthenticating
	})
	return false
}

// requestPairingCode implements the pairing-mode contract: wait a
// settle delay, then actively request a code with bounded retries
// rather than waiting for a push event.
func (o *Orchestrator) requestPairingCode(ctx context.Context, sess *session) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(o.cfg.Pairing.SettleDelay.Duration):
	}

	var lastErr error
	for try := 0; try <= o.cfg.Pairing.RequestRetries; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.cfg.Pairing.RequestBackoff.Duration):
			}
		}

		o.mu.Lock()
		released := sess.released
		socket := sess.socket
		o.mu.Unlock()
		if released {
			return
		}

		code, err := socket.RequestPairingCode(ctx, sess.phone)
		if err != nil {
			lastErr = err
			o.logger.WithError(err).WithField("session", sess.id).Debug("Pairing code request failed, retrying")
			continue
		}

		o.mu.Lock()
		sess.status = registry.StatusChallengeIssued
		o.mu.Unlock()
		o.updateRecord(sess.id, func(rec *registry.Session) {
			rec.Status = registry.StatusChallengeIssued
		})
		o.hub.Publish(sess.id, notify.KindPairingCode, code)
		sess.deliver(outcome{code: code})
		return
	}

	o.finish(sess, finishOpts{
		status:     registry.StatusFailed,
		notify:     notify.KindFailed,
		payload:    "pairing code request failed",
		deliverErr: errors.Wrap(lastErr, errors.ErrCodeInternal, "failed to obtain pairing code"),
	})
}

// timeout handles the session deadline firing while non-terminal.
func (o *Orchestrator) timeout(sess *session) {
	pairing := sess.mode == registry.ModePairing
	window := o.cfg.ConnectTimeout(pairing)
	o.finish(sess, finishOpts{
		status:     registry.StatusTimedOut,
		notify:     notify.KindFailed,
		payload:    "timeout",
		deliverErr: errors.ConnectionTimeout(sess.id, window.String()),
	})
}

// finishOpts parameterizes terminal cleanup.
type finishOpts struct {
	status registry.Status
	// logout requests a server-side logout before the hard close.
	logout bool
	// notify, when set, is published to the sink with payload.
	notify  notify.Kind
	payload string
	// deliverErr resolves a still-pending creation request.
	deliverErr error
}

// finish transitions a session to a terminal state: releases the table
// entry, closes the socket, removes the registry record and credential
// directory, and notifies the sink. Exactly one caller wins; later
// calls are no-ops. Cleanup is best-effort and never propagates: a
// failed directory removal is logged and the record is still dropped so
// sweeps don't thrash on it.
func (o *Orchestrator) finish(sess *session, opts finishOpts) {
	o.mu.Lock()
	if sess.released {
		o.mu.Unlock()
		return
	}
	sess.released = true
	sess.status = opts.status
	socket := sess.socket
	delete(o.active, sess.id)
	o.mu.Unlock()

	sess.cancel()

	if socket != nil {
		if opts.logout {
			logoutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := socket.Logout(logoutCtx); err != nil {
				o.logger.WithError(err).WithField("session", sess.id).Debug("Logout failed, closing hard")
			}
			cancel()
		}
		_ = socket.Close()
	}

	if err := o.reg.Delete(sess.id); err != nil {
		o.logger.WithError(err).WithField("session", sess.id).Warn("Failed to remove registry record")
	}
	if err := o.creds.Remove(sess.id); err != nil {
		o.logger.WithError(err).WithField("session", sess.id).Warn("Failed to remove credential directory")
	}

	if opts.notify != "" {
		o.hub.Publish(sess.id, opts.notify, opts.payload)
	}
	if opts.deliverErr != nil {
		sess.deliver(outcome{err: opts.deliverErr})
	}
}

// updateRecord applies a mutation to one registry record, ignoring
// records that no longer exist (a sweep may have removed them).
func (o *Orchestrator) updateRecord(id string, fn func(*registry.Session)) {
	err := o.reg.Update(func(doc *registry.Document) error {
		if rec, ok := doc.Sessions[id]; ok {
			fn(rec)
		}
		return nil
	})
	if err != nil {
		o.logger.WithError(err).WithField("session", id).Error("Registry update failed")
	}
}
