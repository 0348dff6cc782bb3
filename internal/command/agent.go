package command

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-session/server"
	"github.com/mitchellh/cli"
)

var _ cli.Command = (*AgentCommand)(nil)

const shutdownTimeout = 5 * time.Second

type AgentCommand struct {
	*Meta

	flagAddr     string
	flagNoBanner bool
}

func (c *AgentCommand) Synopsis() string {
	return "Serve the session over a local HTTP API"
}

func (c *AgentCommand) Help() string {
	return helpText(`
Usage: sessionctl agent [options]

  Keeps the session renewed in the background and serves it on a local
  address until interrupted. With SESSION_PROXY_UPSTREAM set, requests to
  /proxy/ are forwarded upstream carrying the session's bearer token.
`, c.flags())
}

func (c *AgentCommand) flags() *flag.FlagSet {
	fs := c.flagSet("agent")
	fs.StringVar(&c.flagAddr, "addr", "", "Address to listen on. Defaults to SESSION_AGENT_ADDR.")
	fs.BoolVar(&c.flagNoBanner, "no-banner", false, "Do not print the banner on start.")
	return fs
}

func (c *AgentCommand) Run(args []string) int {
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

	if !c.flagNoBanner {
		c.Ui.Output(figure.NewFigure(rt.cfg.GetAppName(), "cybermedium", true).String())
	}

	srv, err := server.New(rt.cfg, rt.manager, server.WithLogger(rt.logger))
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error creating server: %s", err))
		return ExitError
	}
	defer srv.Close()

	addr := rt.cfg.GetAgentAddr()
	if c.flagAddr != "" {
		addr = c.flagAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error listening on %s: %s", addr, err))
		return ExitError
	}

	httpServer := &http.Server{Handler: srv, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(httpServer, ln)
	}()
	rt.logger.Info().Str("addr", ln.Addr().String()).Str("status", rt.manager.Status().String()).Msg("Agent listening")

	select {
	case <-c.context().Done():
	case err := <-serveErr:
		if err != nil {
			c.Ui.Error(err.Error())
			return ExitError
		}
	}

	if err := shutdown(httpServer); err != nil {
		c.Ui.Error(err.Error())
		return ExitError
	}
	rt.logger.Info().Msg("Agent stopped")
	return ExitSuccess
}

func listenAndServe(httpServer *http.Server, ln net.Listener) error {
	if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.Serve %w", err)
	}
	return nil
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
