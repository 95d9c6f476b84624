package users

import "time"

// User is a durable federated identity. It survives across sessions and
// devices and is the preferred key for stored credentials.
type User struct {
	ID          string    `json:"id,omitempty"`           // Unique identifier for the user
	Email       string    `json:"email,omitempty"`        // User's email address
	DisplayName string    `json:"display_name,omitempty"` // Display name from the identity provider
	PhotoURL    string    `json:"photo_url,omitempty"`    // Avatar URL from the identity provider
	DateJoined  time.Time `json:"date_joined,omitempty"`  // When the user record was created
	LastLogin   time.Time `json:"last_login,omitempty"`   // Last time the user signed in
}
