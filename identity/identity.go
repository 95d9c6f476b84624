// Package identity reconciles the two caller identifiers (a durable
// federated user id and a transient per-session id) into the single key
// credential lookups and writes use.
package identity

// Identity describes the caller of one request.
type Identity struct {
	// StableUserID is set only for authenticated callers; it survives
	// across devices and sessions.
	StableUserID string
	// TransientID is the per-session identifier, always present. It is
	// the fallback storage key and the pre-authentication anchor during
	// the authorization-code exchange.
	TransientID string
}

// Key is the identifier credential lookups and writes use. A durable
// identity always takes precedence over the transient one.
func (id Identity) Key() string {
	if id.StableUserID != "" {
		return id.StableUserID
	}
	return id.TransientID
}

// Authenticated reports whether the caller carries a durable identity.
func (id Identity) Authenticated() bool {
	return id.StableUserID != ""
}
