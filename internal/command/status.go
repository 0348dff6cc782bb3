package command

import (
	"encoding/json"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/cli"
)

var _ cli.Command = (*StatusCommand)(nil)

type StatusCommand struct {
	*Meta

	flagTokenInfo bool
	flagJSON      bool
}

type statusOutput struct {
	Status        string     `json:"status"`
	Authenticated bool       `json:"authenticated"`
	Subject       string     `json:"sub,omitempty"`
	Email         string     `json:"email,omitempty"`
	Name          string     `json:"name,omitempty"`
	HasCredential bool       `json:"has_credential"`
	CanRenew      bool       `json:"can_renew"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Scopes        []string   `json:"scopes,omitempty"`
}

func (c *StatusCommand) flags() *flag.FlagSet {
	fs := c.flagSet("status")
	fs.BoolVar(&c.flagTokenInfo, "tokeninfo", false, "Ask the provider which scopes the current access credential carries.")
	fs.BoolVar(&c.flagJSON, "json", false, "Print the status as JSON.")
	return fs
}

func (c *StatusCommand) Synopsis() string {
	return "Show the current session"
}

func (c *StatusCommand) Help() string {
	return helpText(`
Usage: sessionctl status [options]

  Prints the session status, the logged in identity and when the access
  credential expires.
`, c.flags())
}

func (c *StatusCommand) Run(args []string) int {
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

	snap := rt.manager.Snapshot()
	out := statusOutput{
		Status:        snap.Status.String(),
		Authenticated: snap.Status.Authenticated(),
	}
	if a := snap.Assertion; a != nil {
		out.Subject = a.Subject
		out.Email = a.Email
		out.Name = a.DisplayName()
		out.CanRenew = rt.provider.HasGrant()
	}
	if cred := snap.Credential; cred != nil && cred.Usable(snap.TakenAt) {
		out.HasCredential = true
		if cred.KnownExpiry() {
			expiresAt := cred.ExpiresAt
			out.ExpiresAt = &expiresAt
		}

		if c.flagTokenInfo {
			info, err := rt.provider.TokenInfo(c.context(), cred.Token)
			if err != nil {
				c.Ui.Error(fmt.Sprintf("Error reading token info: %s", err))
				return ExitError
			}
			out.Scopes = info.Scopes()
		}
	}

	if c.flagJSON {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			c.Ui.Error(err.Error())
			return ExitError
		}
		c.Ui.Output(string(data))
		return ExitSuccess
	}

	c.Ui.Output("Status:     " + out.Status)
	if out.Subject != "" {
		c.Ui.Output("Identity:   " + out.Name + " (" + out.Subject + ")")
	}
	if out.Email != "" {
		c.Ui.Output("Email:      " + out.Email)
	}
	switch {
	case out.ExpiresAt != nil:
		c.Ui.Output(fmt.Sprintf("Expires:    %s (in %s)", out.ExpiresAt.Format(time.RFC3339), out.ExpiresAt.Sub(snap.TakenAt).Round(time.Second)))
	case out.HasCredential:
		c.Ui.Output("Expires:    unknown")
	}
	if out.Authenticated && !out.CanRenew {
		c.Ui.Warn("No refresh grant is stored; run sessionctl login to enable renewal.")
	}
	if len(out.Scopes) > 0 {
		c.Ui.Output("Scopes:     " + strings.Join(out.Scopes, " "))
	}
	return ExitSuccess
}
