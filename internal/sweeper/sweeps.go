package sweeper

import (
	"time"

	"github.com/pairlink/core/internal/registry"
)

// SweepExpired removes registry records whose TTL has elapsed, along
// with their credential directories. Good and permanent sessions are
// exempt. Returns how many sessions were removed.
//
// A failed directory removal is logged but the record is still dropped:
// the orphan sweep will retry the directory later, and a record that
// keeps resurrecting would make every pass re-fail on the same entry.
func (s *Sweeper) SweepExpired() int {
	records, err := s.reg.All()
	if err != nil {
		s.logger.WithError(err).Error("Expired sweep could not read registry")
		return 0
	}

	now := time.Now().UTC()
	removed := 0
	for _, rec := range records {
		if rec.Good || rec.Permanent {
			continue
		}
		if !rec.Expired(now) {
			continue
		}

		s.logger.WithField("session", rec.ID).Info("Removing expired session")
		if err := s.creds.Remove(rec.ID); err != nil {
			s.logger.WithError(err).WithField("session", rec.ID).Warn("Failed to remove credential directory")
		}
		if err := s.reg.Delete(rec.ID); err != nil {
			s.logger.WithError(err).WithField("session", rec.ID).Warn("Failed to remove registry record")
			continue
		}
		removed++
	}
	return removed
}

// SweepOrphans reconciles the registry with the credential store in
// both directions: records whose directory vanished are dropped, and
// untracked directories holding no valid credentials are deleted once
// older than the grace period. Untracked directories with valid
// credentials are kept; deleting working credential material is never
// the sweeper's call.
func (s *Sweeper) SweepOrphans() int {
	removed := 0

	records, err := s.reg.All()
	if err != nil {
		s.logger.WithError(err).Error("Orphan sweep could not read registry")
		return 0
	}

	tracked := make(map[string]*registry.Session, len(records))
	for _, rec := range records {
		tracked[rec.ID] = rec

		if rec.Good || rec.Permanent {
			continue
		}
		if s.creds.Exists(rec.ID) {
			continue
		}

		s.logger.WithField("session", rec.ID).Info("Removing orphan registry record")
		if err := s.reg.Delete(rec.ID); err != nil {
			s.logger.WithError(err).WithField("session", rec.ID).Warn("Failed to remove registry record")
			continue
		}
		removed++
	}

	ids, err := s.creds.List()
	if err != nil {
		s.logger.WithError(err).Error("Orphan sweep could not read credential store")
		return removed
	}

	for _, id := range ids {
		if _, ok := tracked[id]; ok {
			continue
		}
		if s.creds.Valid(id) {
			continue
		}
		if s.withinGrace(id, nil) {
			continue
		}

		s.logger.WithField("session", id).Info("Removing untracked credential directory")
		if err := s.creds.Remove(id); err != nil {
			s.logger.WithError(err).WithField("session", id).Warn("Failed to remove credential directory")
			continue
		}
		removed++
	}
	return removed
}

// SweepInvalid walks the credential store and removes directories whose
// durable file fails the validity check, subject to a minimum-age grace
// so half-written credentials from an in-flight attempt are left alone.
// Valid directories of permanent sessions are pruned down to the
// durable file as a side effect.
func (s *Sweeper) SweepInvalid() int {
	ids, err := s.creds.List()
	if err != nil {
		s.logger.WithError(err).Error("Invalid sweep could not read credential store")
		return 0
	}

	removed := 0
	for _, id := range ids {
		rec, _ := s.reg.Get(id)

		if s.creds.Valid(id) {
			if rec != nil && rec.Permanent {
				if n, err := s.creds.Prune(id); err == nil && n > 0 {
					s.logger.WithField("session", id).Debugf("Pruned %d stale credential artifacts", n)
				}
			}
			continue
		}

		if s.withinGrace(id, rec) {
			continue
		}

		s.logger.WithField("session", id).Info("Removing invalid credential directory")
		if err := s.creds.Remove(id); err != nil {
			s.logger.WithError(err).WithField("session", id).Warn("Failed to remove credential directory")
			continue
		}
		if rec != nil {
			if err := s.reg.Delete(id); err != nil {
				s.logger.WithError(err).WithField("session", id).Warn("Failed to remove registry record")
			}
		}
		removed++
	}
	return removed
}

// SweepUnscanned force-stops active sessions that sat too long without
// reaching a connected state. It inspects the orchestrator's in-memory
// table, not the registry.
func (s *Sweeper) SweepUnscanned() int {
	return s.reaper.ReapIdle(s.cfg.Sweeps.UnscannedMaxAge.Duration)
}

// withinGrace reports whether the session is younger than the sweep
// grace period. The registry creation time is authoritative when a
// record exists; otherwise the directory mtime is the only age signal.
func (s *Sweeper) withinGrace(id string, rec *registry.Session) bool {
	grace := s.cfg.Sweeps.MinAge.Duration
	if grace <= 0 {
		return false
	}

	if rec != nil {
		return time.Since(rec.CreatedAt) < grace
	}

	mtime, err := s.creds.ModTime(id)
	if err != nil {
		return true
	}
	return time.Since(mtime) < grace
}
