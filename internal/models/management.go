package models

import "time"

// ManagementRowID keys the single management row; the store refuses to create
// a second one.
const ManagementRowID = "management"

// ManagementConfig is the club's singleton configuration row: the admission
// keycode, venue details, the monthly fee, and the Venmo payee handle that
// the payment deep-link collaborator consumes.
type ManagementConfig struct {
	ID           string     `json:"id" db:"config_id"`
	Keycode      string     `json:"keycode" db:"keycode"`
	Address      string     `json:"address" db:"address"`
	Welcome      string     `json:"welcome" db:"welcome"`
	YoutubeURL   string     `json:"youtube_url,omitempty" db:"youtube_url"`
	Notification string     `json:"notification" db:"notification"`
	Playwhen     []string   `json:"playwhen" db:"playwhen"`
	Fee          int        `json:"fee" db:"fee"`
	Venmo        string     `json:"venmo" db:"venmo"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// DefaultManagementConfig is the row seeded on first initialization.
func DefaultManagementConfig() *ManagementConfig {
	return &ManagementConfig{
		ID:       ManagementRowID,
		Keycode:  "",
		Fee:      0,
		Playwhen: []string{},
	}
}
