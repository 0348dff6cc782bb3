// Package command implements the sessionctl subcommands.
package command

import (
	"context"
	"flag"
	"io"
	"strings"

	"github.com/jrsteele09/go-auth-session/events"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/internal/logging"
	"github.com/jrsteele09/go-auth-session/provider"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/mitchellh/cli"
	"github.com/rs/zerolog"
)

// Exit codes
const (
	ExitSuccess   = 0
	ExitUserError = 1
	ExitError     = 2
)

// Provider is what the commands need from the identity provider: the
// session manager's collaborator plus interactive login and token
// introspection.
type Provider interface {
	provider.Client
	Login(ctx context.Context, opts provider.LoginOptions) (*provider.LoginResult, error)
	TokenInfo(ctx context.Context, token string) (*provider.TokenInfo, error)
	HasGrant() bool
}

var _ Provider = (*provider.OAuth2Client)(nil)

// Meta is shared by every command.
type Meta struct {
	Ui      cli.Ui
	Context context.Context

	// OpenStore and NewProvider default to the configured store backend and
	// the OAuth2 client.
	OpenStore   func(cfg config.StorageConfig) (*store.Opened, error)
	NewProvider func(ctx context.Context, cfg config.Config, records *store.Records, logger zerolog.Logger) (Provider, error)
}

// runtime is everything a command needs once configuration is loaded.
type runtime struct {
	cfg      config.Config
	logger   zerolog.Logger
	store    *store.Opened
	records  *store.Records
	provider Provider
	events   *events.Broadcaster
	manager  *session.Manager
}

func (r *runtime) Close() {
	r.manager.Close()
	if err := r.store.Close(); err != nil {
		r.logger.Err(err).Msg("Failed to close store")
	}
}

func (m *Meta) context() context.Context {
	if m.Context == nil {
		return context.Background()
	}
	return m.Context
}

func (m *Meta) bootstrap() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg)

	openStore := m.OpenStore
	if openStore == nil {
		openStore = store.Open
	}
	opened, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	records := store.NewRecords(opened, cfg.GetStoreNamespace())

	newProvider := m.NewProvider
	if newProvider == nil {
		newProvider = newOAuth2Provider
	}
	client, err := newProvider(m.context(), cfg, records, logger)
	if err != nil {
		_ = opened.Close()
		return nil, err
	}

	broadcaster := events.NewBroadcaster(events.WithLogger(logger))
	manager, err := session.NewManager(records, client,
		session.WithLogger(logger),
		session.WithBroadcaster(broadcaster),
		session.WithScopes(cfg.GetScopes()...),
		session.WithPrompt(provider.PromptMode(cfg.GetPrompt())),
		session.WithRenewalLead(cfg.GetRenewalLead()),
		session.WithContext(m.context()),
	)
	if err != nil {
		_ = opened.Close()
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		store:    opened,
		records:  records,
		provider: client,
		events:   broadcaster,
		manager:  manager,
	}, nil
}

func newOAuth2Provider(ctx context.Context, cfg config.Config, records *store.Records, logger zerolog.Logger) (Provider, error) {
	client, err := provider.NewOAuth2Client(ctx, provider.Settings{
		Issuer:       cfg.GetIssuer(),
		ClientID:     cfg.GetClientID(),
		ClientSecret: cfg.GetClientSecret(),
		Scopes:       cfg.GetScopes(),
		TokenInfoURL: cfg.GetTokenInfoURL(),
	}, records, provider.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (m *Meta) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// Commands returns the sessionctl command table.
func Commands(meta *Meta) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"login": func() (cli.Command, error) {
			return &LoginCommand{Meta: meta}, nil
		},
		"logout": func() (cli.Command, error) {
			return &LogoutCommand{Meta: meta}, nil
		},
		"status": func() (cli.Command, error) {
			return &StatusCommand{Meta: meta}, nil
		},
		"token": func() (cli.Command, error) {
			return &TokenCommand{Meta: meta}, nil
		},
		"agent": func() (cli.Command, error) {
			return &AgentCommand{Meta: meta}, nil
		},
	}
}

func helpText(usage string, fs *flag.FlagSet) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(usage))
	b.WriteString("\n")
	first := true
	fs.VisitAll(func(f *flag.Flag) {
		if first {
			b.WriteString("\nOptions:\n")
			first = false
		}
		b.WriteString("\n  -" + f.Name)
		if f.DefValue != "" {
			b.WriteString(" (default " + f.DefValue + ")")
		}
		b.WriteString("\n      " + f.Usage + "\n")
	})
	return b.String()
}
