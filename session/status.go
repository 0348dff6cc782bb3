package session

// Status is where a Manager sits in the session lifecycle.
type Status int

const (
	// Uninitialized is only observable before restore has run.
	Uninitialized Status = iota
	// Anonymous: no identity assertion and no credential.
	Anonymous
	// AuthenticatedNoAccess: identity known, no access credential yet.
	AuthenticatedNoAccess
	// AuthenticatedActive: identity and an unexpired credential with a renewal armed.
	AuthenticatedActive
	// AuthenticatedStale: identity and a credential whose expiry elapsed or is unknown.
	AuthenticatedStale
)

var statusNames = map[Status]string{
	Uninitialized:         "uninitialized",
	Anonymous:             "anonymous",
	AuthenticatedNoAccess: "authenticated_no_access",
	AuthenticatedActive:   "authenticated_active",
	AuthenticatedStale:    "authenticated_stale",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the status by name in JSON and logs.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Authenticated reports whether an identity is present.
func (s Status) Authenticated() bool {
	return s == AuthenticatedNoAccess || s == AuthenticatedActive || s == AuthenticatedStale
}
