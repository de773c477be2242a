package sweeper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pairlink/core/config"
	"github.com/pairlink/core/internal/credstore"
	"github.com/pairlink/core/internal/registry"
	"github.com/pairlink/core/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCreds = `{"me":{"id":"15551234567@srv","name":"Test User"}}`

type fakeReaper struct {
	gotMaxAge time.Duration
	reaped    int
}

func (f *fakeReaper) ReapIdle(maxAge time.Duration) int {
	f.gotMaxAge = maxAge
	return f.reaped
}

type fixture struct {
	sweeper *Sweeper
	reg     *registry.Registry
	creds   *credstore.Store
	reaper  *fakeReaper
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Sweeps.MinAge = config.Duration{Duration: 0}
	if mutate != nil {
		mutate(cfg)
	}

	dir := t.TempDir()
	reg := registry.New(filepath.Join(dir, "sessions.json"))
	creds := credstore.New(filepath.Join(dir, "credentials"), logging.NewLogger("credstore"))
	reaper := &fakeReaper{}
	return &fixture{
		sweeper: New(cfg, reg, creds, reaper),
		reg:     reg,
		creds:   creds,
		reaper:  reaper,
	}
}

func (f *fixture) addRecord(t *testing.T, id string, mutate func(*registry.Session)) {
	t.Helper()
	now := time.Now().UTC()
	rec := &registry.Session{
		ID:        id,
		Mode:      registry.ModeQR,
		Status:    registry.StatusCompleted,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if mutate != nil {
		mutate(rec)
	}
	require.NoError(t, f.reg.Upsert(rec))
}

func (f *fixture) hasRecord(id string) bool {
	_, err := f.reg.Get(id)
	return err == nil
}

func TestSweepExpiredRemovesStaleSessions(t *testing.T) {
	f := newFixture(t, nil)

	f.addRecord(t, "stale", func(rec *registry.Session) {
		rec.ExpiresAt = time.Now().Add(-time.Minute)
	})
	f.addRecord(t, "fresh", nil)
	require.NoError(t, f.creds.WriteCredentials("stale", []byte(validCreds)))

	assert.Equal(t, 1, f.sweeper.SweepExpired())
	assert.False(t, f.hasRecord("stale"))
	assert.False(t, f.creds.Exists("stale"))
	assert.True(t, f.hasRecord("fresh"))
}

func TestSweepExpiredExemptsGoodAndPermanent(t *testing.T) {
	f := newFixture(t, nil)

	f.addRecord(t, "good", func(rec *registry.Session) {
		rec.Good = true
		rec.ExpiresAt = time.Now().Add(-time.Hour)
	})
	f.addRecord(t, "permanent", func(rec *registry.Session) {
		rec.Permanent = true
		rec.ExpiresAt = time.Now().Add(-time.Hour)
	})

	assert.Equal(t, 0, f.sweeper.SweepExpired())
	assert.True(t, f.hasRecord("good"))
	assert.True(t, f.hasRecord("permanent"))
}

func TestSweepOrphansDropsRecordsWithoutDirectory(t *testing.T) {
	f := newFixture(t, nil)

	f.addRecord(t, "dirless", nil)
	f.addRecord(t, "backed", nil)
	require.NoError(t, f.creds.WriteCredentials("backed", []byte(validCreds)))

	assert.Equal(t, 1, f.sweeper.SweepOrphans())
	assert.False(t, f.hasRecord("dirless"))
	assert.True(t, f.hasRecord("backed"))
}

func TestSweepOrphansKeepsPermanentRecords(t *testing.T) {
	f := newFixture(t, nil)

	f.addRecord(t, "permanent", func(rec *registry.Session) {
		rec.Permanent = true
	})

	assert.Equal(t, 0, f.sweeper.SweepOrphans())
	assert.True(t, f.hasRecord("permanent"))
}

func TestSweepOrphansRemovesUntrackedInvalidDirectories(t *testing.T) {
	f := newFixture(t, nil)

	// An untracked directory without usable credentials is junk.
	_, err := f.creds.Allocate("untracked-invalid")
	require.NoError(t, err)

	// An untracked directory with valid credentials is kept.
	require.NoError(t, f.creds.WriteCredentials("untracked-valid", []byte(validCreds)))

	assert.Equal(t, 1, f.sweeper.SweepOrphans())
	assert.False(t, f.creds.Exists("untracked-invalid"))
	assert.True(t, f.creds.Exists("untracked-valid"))
}

func TestSweepOrphansHonorsGracePeriod(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Sweeps.MinAge = config.Duration{Duration: time.Hour}
	})

	_, err := f.creds.Allocate("just-born")
	require.NoError(t, err)

	assert.Equal(t, 0, f.sweeper.SweepOrphans())
	assert.True(t, f.creds.Exists("just-born"))
}

func TestSweepInvalidRemovesBadDirectories(t *testing.T) {
	f := newFixture(t, nil)

	f.addRecord(t, "broken", nil)
	_, err := f.creds.Allocate("broken")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.creds.Dir("broken"), credstore.DurableFile), []byte("not json"), 0600))

	require.NoError(t, f.creds.WriteCredentials("healthy", []byte(validCreds)))
	f.addRecord(t, "healthy", nil)

	assert.Equal(t, 1, f.sweeper.SweepInvalid())
	assert.False(t, f.creds.Exists("broken"))
	assert.False(t, f.hasRecord("broken"))
	assert.True(t, f.creds.Exists("healthy"))
	assert.True(t, f.hasRecord("healthy"))
}

func TestSweepInvalidHonorsGracePeriod(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Sweeps.MinAge = config.Duration{Duration: time.Hour}
	})

	// Recent record: half-written credentials from an in-flight attempt.
	f.addRecord(t, "in-flight", func(rec *registry.Session) {
		rec.Status = registry.StatusAuthenticating
	})
	_, err := f.creds.Allocate("in-flight")
	require.NoError(t, err)

	assert.Equal(t, 0, f.sweeper.SweepInvalid())
	assert.True(t, f.creds.Exists("in-flight"))

	// The same state with an old record is fair game.
	f.addRecord(t, "in-flight", func(rec *registry.Session) {
		rec.Status = registry.StatusAuthenticating
		rec.CreatedAt = time.Now().Add(-2 * time.Hour)
	})

	assert.Equal(t, 1, f.sweeper.SweepInvalid())
	assert.False(t, f.creds.Exists("in-flight"))
}

func TestSweepInvalidPrunesPermanentDirectories(t *testing.T) {
	f := newFixture(t, nil)

	f.addRecord(t, "done", func(rec *registry.Session) {
		rec.Good = true
		rec.Permanent = true
	})
	require.NoError(t, f.creds.WriteCredentials("done", []byte(validCreds)))
	require.NoError(t, os.WriteFile(filepath.Join(f.creds.Dir("done"), "session-state.bin"), []byte("x"), 0600))

	assert.Equal(t, 0, f.sweeper.SweepInvalid())

	files, err := f.creds.Files("done")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, credstore.DurableFile, files[0].Name)
}

func TestSweepUnscannedDelegatesToReaper(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Sweeps.UnscannedMaxAge = config.Duration{Duration: 7 * time.Minute}
	})
	f.reaper.reaped = 2

	assert.Equal(t, 2, f.sweeper.SweepUnscanned())
	assert.Equal(t, 7*time.Minute, f.reaper.gotMaxAge)
}
