// Package oauthflowrepo keeps the ephemeral CSRF/continuity state of one
// authorization-code round trip, keyed by the single-use state token. The
// state never outlives the round trip.
package oauthflowrepo

import "time"

type FlowState struct {
	// PendingUserID captures the durable identity of a caller who was
	// already signed in when starting the flow, enabling
	// linking-on-return.
	PendingUserID string
	// SessionID anchors the flow to the transient session it began on.
	SessionID string
	// RedirectTarget is where to send the browser after completion.
	RedirectTarget string
	CreatedAt      time.Time
}

type Repo interface {
	Upsert(state string, flowState *FlowState) error
	// Consume returns the flow state for a state token and deletes it in
	// the same step, whatever the outcome; a state token is valid exactly
	// once.
	Consume(state string) (*FlowState, error)
}
