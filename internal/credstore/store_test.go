package credstore

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pairlink/core/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), logging.NewLogger("credstore-test"))
}

func writeDurable(t *testing.T, s *Store, id, content string) {
	t.Helper()
	_, err := s.Allocate(id)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(id), DurableFile), []byte(content), 0600))
}

const goodCreds = `{"me":{"id":"15551234567@srv","name":"test"},"keys":{"noise":"abc"}}`

func TestAllocateExistsRemove(t *testing.T) {
	s := newTestStore(t)

	dir, err := s.Allocate("abc")
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.True(t, s.Exists("abc"))

	require.NoError(t, s.Remove("abc"))
	assert.False(t, s.Exists("abc"))

	// Removing an absent directory is not an error
	require.NoError(t, s.Remove("abc"))
}

func TestValidityPredicate(t *testing.T) {
	s := newTestStore(t)

	cases := []struct {
		name    string
		content string
		valid   bool
	}{
		{"well-formed", goodCreds, true},
		{"missing identity", `{"me":{"name":"x"}}`, false},
		{"empty identity", `{"me":{"id":""}}`, false},
		{"not json", "garbage{{{", false},
		{"empty file", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			writeDurable(t, s, tc.name, tc.content)
			assert.Equal(t, tc.valid, s.Valid(tc.name))
		})
	}

	// No durable file at all
	_, err := s.Allocate("bare")
	require.NoError(t, err)
	assert.False(t, s.Valid("bare"))
}

func TestIdentity(t *testing.T) {
	s := newTestStore(t)
	writeDurable(t, s, "abc", goodCreds)

	identity, err := s.Identity("abc")
	require.NoError(t, err)
	assert.Equal(t, "15551234567@srv", identity)
}

func TestPruneKeepsOnlyDurableFile(t *testing.T) {
	s := newTestStore(t)
	writeDurable(t, s, "abc", goodCreds)

	dir := s.Dir("abc")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prekeys.bin"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app-state.db"), []byte("y"), 0600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "media-cache"), 0700))

	removed, err := s.Prune("abc")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DurableFile, entries[0].Name())
	assert.True(t, s.Valid("abc"))
}

func TestWriteCredentials(t *testing.T) {
	s := newTestStore(t)

	// Write-through without a prior Allocate must create the directory
	require.NoError(t, s.WriteCredentials("abc", []byte(goodCreds)))
	assert.True(t, s.Valid("abc"))
}

func TestList(t *testing.T) {
	s := newTestStore(t)

	ids, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, ids)

	writeDurable(t, s, "a", goodCreds)
	writeDurable(t, s, "b", goodCreds)

	ids, err = s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestReadFileRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	writeDurable(t, s, "abc", goodCreds)

	_, err := s.ReadFile("abc", "../other/creds.json")
	require.Error(t, err)

	_, err = s.ReadFile("abc", ".hidden")
	require.Error(t, err)

	data, err := s.ReadFile("abc", DurableFile)
	require.NoError(t, err)
	assert.Equal(t, goodCreds, string(data))
}

func TestArchive(t *testing.T) {
	s := newTestStore(t)
	writeDurable(t, s, "abc", goodCreds)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir("abc"), "prekeys.bin"), []byte("x"), 0600))

	var buf bytes.Buffer
	require.NoError(t, s.Archive("abc", &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{DurableFile, "prekeys.bin"}, names)
}
