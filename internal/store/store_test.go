package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sqlite, err := NewSQLite(filepath.Join(dir, "state.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	file, err := NewFile(filepath.Join(dir, "json"), quietLogger())
	require.NoError(t, err)

	return map[string]Store{
		"sqlite": sqlite,
		"file":   file,
		"memory": NewMemory(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(ctx, "dura_gas.main")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Save(ctx, "dura_gas.main", []byte(`{"version":1}`)))
			require.NoError(t, s.Save(ctx, "dura_gas.main", []byte(`{"version":2}`)))
			require.NoError(t, s.Save(ctx, "dura_gas.other", []byte(`{}`)))

			got, err := s.Load(ctx, "dura_gas.main")
			require.NoError(t, err)
			assert.JSONEq(t, `{"version":2}`, string(got))
		})
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFile(dir, quietLogger())
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), "tank/../x", []byte(`{}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tank_.._x.json", entries[0].Name())
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.sqlite")
	ctx := context.Background()

	s, err := NewSQLite(path, quietLogger())
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path, quietLogger())
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("", quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(filepath.Join(dir, "gas.db"), quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	s.Close()

	s, err = Open(filepath.Join(dir, "state"), quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)
}
