package command

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-session/provider"
	"github.com/mitchellh/cli"
)

var _ cli.Command = (*LoginCommand)(nil)

type LoginCommand struct {
	*Meta

	flagPrompt  string
	flagHint    string
	flagPort    int
	flagTimeout time.Duration
	flagNoWait  bool
}

func (c *LoginCommand) flags() *flag.FlagSet {
	fs := c.flagSet("login")
	fs.StringVar(&c.flagPrompt, "prompt", "", `Prompt to send with the authorization request: "none", "consent" or "select_account". Defaults to the configured prompt.`)
	fs.StringVar(&c.flagHint, "hint", "", "Account (usually an email address) to preselect at the provider.")
	fs.IntVar(&c.flagPort, "port", -1, "Loopback port for the authorization callback. Defaults to the configured redirect port.")
	fs.DurationVar(&c.flagTimeout, "timeout", 2*time.Minute, "How long to wait for the browser login and the first access credential.")
	fs.BoolVar(&c.flagNoWait, "no-wait", false, "Return once the identity is accepted without waiting for an access credential.")
	return fs
}

func (c *LoginCommand) Synopsis() string {
	return "Log in through the browser and start a session"
}

func (c *LoginCommand) Help() string {
	return helpText(`
Usage: sessionctl login [options]

  Runs the authorization code flow against a listener on 127.0.0.1, stores the
  refresh grant and the identity, and waits for the first access credential.
`, c.flags())
}

func (c *LoginCommand) Run(args []string) int {
	fs := c.flags()
	if err := fs.Parse(args); err != nil {
		c.Ui.Error(err.Error())
		return ExitUserError
	}

	rt, err := c.bootstrap()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error starting session: %s", err))
		return ExitError
	}
	defer rt.Close()

	prompt := provider.PromptMode(rt.cfg.GetPrompt())
	if c.flagPrompt != "" {
		prompt = provider.PromptMode(c.flagPrompt)
	}
	port := rt.cfg.GetRedirectPort()
	if c.flagPort >= 0 {
		port = c.flagPort
	}

	ctx, cancel := context.WithTimeout(c.context(), c.flagTimeout)
	defer cancel()

	result, err := rt.provider.Login(ctx, provider.LoginOptions{
		Port:   port,
		Prompt: prompt,
		Hint:   c.flagHint,
		Scopes: rt.cfg.GetScopes(),
		Announce: func(authURL string) {
			c.Ui.Output("Open the following URL in your browser to log in:\n\n    " + authURL + "\n")
		},
	})
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Login failed: %s", err))
		return ExitError
	}

	assertion, err := rt.manager.LoginWithRawAssertion(result.RawIDToken)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Login failed: %s", err))
		return ExitError
	}
	if result.Credential != nil {
		if err := rt.manager.OnAccessCredentialIssued(*result.Credential); err != nil {
			rt.logger.Err(err).Msg("Failed to apply the access credential issued at login")
		}
	}
	c.Ui.Output(fmt.Sprintf("Logged in as %s (%s)", assertion.DisplayName(), assertion.Subject))

	if !result.HasGrant {
		c.Ui.Warn("The provider issued no refresh grant; run login with -prompt=consent to enable renewal.")
	}
	if c.flagNoWait || (!result.HasGrant && result.Credential == nil) {
		return ExitSuccess
	}

	if _, err := rt.manager.WaitForAccessCredential(ctx); err != nil {
		c.Ui.Error(fmt.Sprintf("No access credential was issued: %s", err))
		return ExitError
	}
	if cred, ok := rt.manager.Credential(); ok && cred.KnownExpiry() {
		c.Ui.Output(fmt.Sprintf("Access credential valid until %s", cred.ExpiresAt.Format(time.RFC3339)))
	}
	return ExitSuccess
}
