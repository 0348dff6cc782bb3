package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Store backends.
const (
	StoreMemory  = "memory"
	StoreFile    = "file"
	StoreKeyring = "keyring"
	StoreRedis   = "redis"
)

type StorageConfig interface {
	GetStoreBackend() string
	GetStoreNamespace() string
	GetStoreFile() string
	GetStorePassphrase() string
	GetKeyringService() string
	GetRedisURL() string
}

type Storage struct {
	Backend        string `envconfig:"STORE" default:"file"`
	Namespace      string `envconfig:"STORE_NAMESPACE" default:"GoAuthSession"`
	FilePath       string `envconfig:"STORE_FILE"`
	Passphrase     string `envconfig:"STORE_PASSPHRASE"`
	KeyringService string `envconfig:"KEYRING_SERVICE" default:"Go Auth Session"`
	RedisURL       string `envconfig:"REDIS_URL"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetStoreBackend() string {
	return strings.ToLower(s.Backend)
}

func (s Storage) GetStoreNamespace() string {
	return s.Namespace
}

// GetStoreFile defaults to <user config dir>/go-auth-session/session.json.
func (s Storage) GetStoreFile() string {
	if s.FilePath != "" {
		return s.FilePath
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "go-auth-session", "session.json")
}

func (s Storage) GetStorePassphrase() string {
	return s.Passphrase
}

func (s Storage) GetKeyringService() string {
	return s.KeyringService
}

func (s Storage) GetRedisURL() string {
	return s.RedisURL
}
