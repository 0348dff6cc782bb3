package store

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-auth-session/internal/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

var _ DurableStore = (*FileStore)(nil)

const (
	fileStoreVersion = 1
	saltLength       = 16
	nonceLength      = 24

	// argon2id parameters for deriving the sealing key from a passphrase
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// fileEnvelope is the on-disk layout. Exactly one of Entries (plaintext) or
// Sealed (secretbox of the JSON-encoded entries) is populated.
type fileEnvelope struct {
	Version int               `json:"version"`
	Entries map[string]string `json:"entries,omitempty"`
	Salt    string            `json:"salt,omitempty"`
	Nonce   string            `json:"nonce,omitempty"`
	Sealed  string            `json:"sealed,omitempty"`
}

// FileStore keeps every key in one JSON file, rewritten atomically on each
// mutation. With a passphrase the entries are sealed with NaCl secretbox
// under an argon2id-derived key. The file is re-read on every call so other
// processes sharing it see each other's writes.
type FileStore struct {
	mu         sync.Mutex
	path       string
	passphrase []byte
	salt       []byte
	key        *[32]byte
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithPassphrase enables encryption at rest.
func WithPassphrase(passphrase string) FileStoreOption {
	return func(s *FileStore) {
		if passphrase != "" {
			s.passphrase = []byte(passphrase)
		}
	}
}

// NewFileStore creates a store backed by the file at path. The parent
// directory is created if needed; the file itself is created on first write.
func NewFileStore(path string, opts ...FileStoreOption) (*FileStore, error) {
	if path == "" {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "[store file] path is required")
	}
	s := &FileStore{path: path}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, unavailable(err, "[store file] create directory")
	}
	return s, nil
}

// Path returns the backing file's path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return "", err
	}
	value, ok := entries[key]
	if !ok {
		return "", errors.ErrNotFound
	}
	return value, nil
}

func (s *FileStore) Set(key, value string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	entries[key] = value
	return s.write(entries)
}

func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return s.write(entries)
}

func (s *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, unavailable(err, "[store file] read %s", s.path)
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, unavailable(err, "[store file] decode %s", s.path)
	}

	if env.Sealed == "" {
		if env.Entries == nil {
			env.Entries = make(map[string]string)
		}
		return env.Entries, nil
	}
	return s.open(env)
}

func (s *FileStore) open(env fileEnvelope) (map[string]string, error) {
	if s.passphrase == nil {
		return nil, errors.Wrapf(errors.ErrStorageUnavailable, "[store file] %s is encrypted and no passphrase was configured", s.path)
	}

	salt, err := base64.RawStdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, unavailable(err, "[store file] decode salt")
	}
	nonceBytes, err := base64.RawStdEncoding.DecodeString(env.Nonce)
	if err != nil || len(nonceBytes) != nonceLength {
		return nil, errors.Wrapf(errors.ErrStorageUnavailable, "[store file] invalid nonce")
	}
	sealed, err := base64.RawStdEncoding.DecodeString(env.Sealed)
	if err != nil {
		return nil, unavailable(err, "[store file] decode sealed entries")
	}

	var nonce [nonceLength]byte
	copy(nonce[:], nonceBytes)
	plaintext, ok := secretbox.Open(nil, sealed, &nonce, s.keyFor(salt))
	if !ok {
		return nil, errors.Wrapf(errors.ErrStorageUnavailable, "[store file] cannot decrypt %s: wrong passphrase or corrupted file", s.path)
	}

	entries := make(map[string]string)
	if err := json.Unmarshal(plaintext, &entries); err != nil {
		return nil, unavailable(err, "[store file] decode decrypted entries")
	}
	return entries, nil
}

func (s *FileStore) write(entries map[string]string) error {
	env := fileEnvelope{Version: fileStoreVersion}
	if s.passphrase == nil {
		env.Entries = entries
	} else {
		sealed, err := s.seal(entries)
		if err != nil {
			return err
		}
		env = sealed
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return unavailable(err, "[store file] encode")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return unavailable(err, "[store file] create temp file")
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return unavailable(err, "[store file] chmod temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return unavailable(err, "[store file] write temp file")
	}
	if err := tmp.Close(); err != nil {
		return unavailable(err, "[store file] close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return unavailable(err, "[store file] replace %s", s.path)
	}
	return nil
}

func (s *FileStore) seal(entries map[string]string) (fileEnvelope, error) {
	plaintext, err := json.Marshal(entries)
	if err != nil {
		return fileEnvelope{}, unavailable(err, "[store file] encode entries")
	}

	if s.salt == nil {
		salt := make([]byte, saltLength)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fileEnvelope{}, unavailable(err, "[store file] generate salt")
		}
		s.salt = salt
		s.key = nil
	}

	var nonce [nonceLength]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fileEnvelope{}, unavailable(err, "[store file] generate nonce")
	}

	sealed := secretbox.Seal(nil, plaintext, &nonce, s.keyFor(s.salt))
	return fileEnvelope{
		Version: fileStoreVersion,
		Salt:    base64.RawStdEncoding.EncodeToString(s.salt),
		Nonce:   base64.RawStdEncoding.EncodeToString(nonce[:]),
		Sealed:  base64.RawStdEncoding.EncodeToString(sealed),
	}, nil
}

// keyFor derives (and caches) the sealing key for salt. A file written by
// another process may carry a different salt, in which case it is adopted.
func (s *FileStore) keyFor(salt []byte) *[32]byte {
	if s.key != nil && string(salt) == string(s.salt) {
		return s.key
	}
	derived := argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	var key [32]byte
	copy(key[:], derived)
	s.salt = append([]byte(nil), salt...)
	s.key = &key
	return s.key
}
