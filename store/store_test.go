package store_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// exerciseStore runs the behaviour every DurableStore must share.
func exerciseStore(t *testing.T, s store.DurableStore) {
	t.Helper()

	_, err := s.Get("missing")
	require.ErrorIs(t, err, errors.ErrNotFound)
	require.True(t, store.IsNotFound(err))

	require.NoError(t, s.Set("a", "1"))
	require.NoError(t, s.Set("b", "two words"))
	require.NoError(t, s.Set("a", "overwritten"))

	v, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, "overwritten", v)

	v, err = s.Get("b")
	require.NoError(t, err)
	require.Equal(t, "two words", v)

	require.NoError(t, s.Remove("a"))
	require.NoError(t, s.Remove("a"), "removing an absent key is not an error")

	_, err = s.Get("a")
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestInMemoryStore(t *testing.T) {
	s := store.NewInMemoryStore()
	exerciseStore(t, s)
	require.Equal(t, []string{"b"}, s.Keys())
}

func TestFileStore(t *testing.T) {
	t.Run("plaintext", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "session.json")
		s, err := store.NewFileStore(path)
		require.NoError(t, err)
		exerciseStore(t, s)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "two words")

		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("encrypted", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		s, err := store.NewFileStore(path, store.WithPassphrase("correct horse"))
		require.NoError(t, err)
		exerciseStore(t, s)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NotContains(t, string(data), "two words")
		require.Contains(t, string(data), "sealed")

		// A second instance with the same passphrase reads the first one's data.
		reopened, err := store.NewFileStore(path, store.WithPassphrase("correct horse"))
		require.NoError(t, err)
		v, err := reopened.Get("b")
		require.NoError(t, err)
		require.Equal(t, "two words", v)

		wrong, err := store.NewFileStore(path, store.WithPassphrase("wrong"))
		require.NoError(t, err)
		_, err = wrong.Get("b")
		require.ErrorIs(t, err, errors.ErrStorageUnavailable)

		noPass, err := store.NewFileStore(path)
		require.NoError(t, err)
		_, err = noPass.Get("b")
		require.ErrorIs(t, err, errors.ErrStorageUnavailable)
	})

	t.Run("corrupted file is unavailable, not empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		require.NoError(t, os.WriteFile(path, []byte("{garbage"), 0o600))

		s, err := store.NewFileStore(path)
		require.NoError(t, err)
		_, err = s.Get("a")
		require.ErrorIs(t, err, errors.ErrStorageUnavailable)
		require.ErrorIs(t, s.Set("a", "1"), errors.ErrStorageUnavailable)
	})

	t.Run("requires a path", func(t *testing.T) {
		_, err := store.NewFileStore("")
		require.ErrorIs(t, err, errors.ErrInvalidConfig)
	})
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	exerciseStore(t, store.NewKeyringStore("go-auth-session-test"))
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("SESSION_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SESSION_TEST_REDIS_URL not set")
	}

	client, err := store.DialRedis(url)
	require.NoError(t, err)
	defer client.Close()

	prefix := "go-auth-session-test:" + strings.ReplaceAll(t.Name(), "/", "_") + ":"
	exerciseStore(t, store.NewRedisStore(client, store.WithKeyPrefix(prefix)))
}

func TestOpen(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		opened, err := store.Open(config.Storage{Backend: config.StoreMemory})
		require.NoError(t, err)
		require.IsType(t, &store.InMemoryStore{}, opened.DurableStore)
		require.NoError(t, opened.Close())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "s.json")
		opened, err := store.Open(config.Storage{Backend: config.StoreFile, FilePath: path})
		require.NoError(t, err)
		fs, ok := opened.DurableStore.(*store.FileStore)
		require.True(t, ok)
		require.Equal(t, path, fs.Path())
	})

	t.Run("keyring", func(t *testing.T) {
		opened, err := store.Open(config.Storage{Backend: config.StoreKeyring})
		require.NoError(t, err)
		require.IsType(t, &store.KeyringStore{}, opened.DurableStore)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := store.Open(config.Storage{Backend: "etcd"})
		require.ErrorIs(t, err, errors.ErrInvalidConfig)
	})
}
