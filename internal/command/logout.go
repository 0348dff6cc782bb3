package command

import (
	"fmt"

	"github.com/jrsteele09/go-auth-session/session"
	"github.com/mitchellh/cli"
)

var _ cli.Command = (*LogoutCommand)(nil)

type LogoutCommand struct {
	*Meta
}

func (c *LogoutCommand) Synopsis() string {
	return "End the session and revoke its credentials"
}

func (c *LogoutCommand) Help() string {
	return helpText(`
Usage: sessionctl logout

  Clears the stored identity and access credential, then asks the provider to
  revoke the access token and the refresh grant.
`, c.flagSet("logout"))
}

func (c *LogoutCommand) Run(args []string) int {
	if err := c.flagSet("logout").Parse(args); err != nil {
		c.Ui.Error(err.Error())
		return ExitUserError
	}

	rt, err := c.bootstrap()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error starting session: %s", err))
		return ExitError
	}
	defer rt.Close()

	// Logging out anonymously still clears leftover entries and any
	// refresh grant.
	anonymous := rt.manager.Status() == session.Anonymous
	rt.manager.Logout(c.context())
	if anonymous {
		c.Ui.Output("Not logged in.")
	} else {
		c.Ui.Output("Logged out.")
	}
	return ExitSuccess
}
