package config

type AgentConfig interface {
	GetAgentAddr() string
	GetProxyUpstream() string
}

type Agent struct {
	Addr          string `envconfig:"AGENT_ADDR" default:"127.0.0.1:8790"`
	ProxyUpstream string `envconfig:"PROXY_UPSTREAM"`
}

var _ AgentConfig = Agent{}

func (a Agent) GetAgentAddr() string {
	return a.Addr
}

// GetProxyUpstream is the base URL the agent's /proxy/ route forwards to.
// Empty disables the proxy.
func (a Agent) GetProxyUpstream() string {
	return a.ProxyUpstream
}
