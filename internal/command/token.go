package command

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-session/session"
	"github.com/mitchellh/cli"
)

var _ cli.Command = (*TokenCommand)(nil)

type TokenCommand struct {
	*Meta

	flagTimeout time.Duration
}

func (c *TokenCommand) flags() *flag.FlagSet {
	fs := c.flagSet("token")
	fs.DurationVar(&c.flagTimeout, "timeout", 30*time.Second, "How long to wait for a renewed access credential.")
	return fs
}

func (c *TokenCommand) Synopsis() string {
	return "Print a usable access token"
}

func (c *TokenCommand) Help() string {
	return helpText(`
Usage: sessionctl token [options]

  Prints the current access token, renewing it first when it has expired.
  Suitable for scripts, e.g. curl -H "Authorization: Bearer $(sessionctl token)".
`, c.flags())
}

func (c *TokenCommand) Run(args []string) int {
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

	if token, ok := rt.manager.AccessCredential(); ok {
		c.Ui.Output(token)
		return ExitSuccess
	}
	if rt.manager.Status() == session.Anonymous {
		c.Ui.Error("Not logged in. Run sessionctl login first.")
		return ExitUserError
	}

	ctx, cancel := context.WithTimeout(c.context(), c.flagTimeout)
	defer cancel()

	// Restoring a stale session already asked for a renewal.
	token, err := rt.manager.WaitForAccessCredential(ctx)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("No access credential available: %s", err))
		return ExitError
	}
	c.Ui.Output(token)
	return ExitSuccess
}
