package store

import (
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/internal/errors"
)

// Opened is a durable store together with the function releasing whatever it
// holds open.
type Opened struct {
	DurableStore
	Close func() error
}

// Open builds the backend selected by cfg.
func Open(cfg config.StorageConfig) (*Opened, error) {
	noop := func() error { return nil }

	switch cfg.GetStoreBackend() {
	case config.StoreMemory:
		return &Opened{DurableStore: NewInMemoryStore(), Close: noop}, nil

	case config.StoreFile:
		fs, err := NewFileStore(cfg.GetStoreFile(), WithPassphrase(cfg.GetStorePassphrase()))
		if err != nil {
			return nil, err
		}
		return &Opened{DurableStore: fs, Close: noop}, nil

	case config.StoreKeyring:
		return &Opened{DurableStore: NewKeyringStore(cfg.GetKeyringService()), Close: noop}, nil

	case config.StoreRedis:
		client, err := DialRedis(cfg.GetRedisURL())
		if err != nil {
			return nil, err
		}
		return &Opened{DurableStore: NewRedisStore(client), Close: client.Close}, nil
	}

	return nil, errors.Wrapf(errors.ErrInvalidConfig, "[store Open] unknown backend %q", cfg.GetStoreBackend())
}
