package models

import "time"

// Permit tiers gating feature access.
const (
	PermitRegular  = 0
	PermitElevated = 1
	PermitAdmin    = 2
	PermitSuper    = 9
)

// Today tri-state: has the member decided whether they are in for today's play.
const (
	TodayUndecided = 0
	TodayIn        = 1
	TodayOut       = 2
)

// Member is a club member record. Candidates awaiting phone verification carry
// Syncd==0 and are invisible to roster operations until promoted.
type Member struct {
	Bucket       int        `json:"-" db:"bucket"`
	ID           string     `json:"id" db:"member_id"`
	Username     string     `json:"username" db:"username"`
	PasswordHash string     `json:"-" db:"password_hash"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	PhoneNumber  string     `json:"phone_number" db:"phone_number"`
	DOB          string     `json:"dob" db:"dob"`
	Attendance   int        `json:"attendance" db:"attendance"`
	Permit       int        `json:"permit" db:"permit"`
	Today        int        `json:"today" db:"today"`
	Guest        int        `json:"guest" db:"guest"`
	Recovery     string     `json:"-" db:"recovery"`
	Syncd        int        `json:"syncd" db:"syncd"`
	OrderIndex   int        `json:"order_index" db:"order_index"`
	PictureURL   string     `json:"picture_url,omitempty" db:"picture_url"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// IsProtected reports whether the record is shielded from deletion and
// permit edits by non-super callers.
func (m *Member) IsProtected() bool {
	return m.Permit == PermitAdmin
}

// ValidPermit reports whether p is one of the defined permit tiers.
func ValidPermit(p int) bool {
	switch p {
	case PermitRegular, PermitElevated, PermitAdmin, PermitSuper:
		return true
	}
	return false
}

// FullName renders "Lastname Firstname", the display form used by the dues
// CSV export.
func (m *Member) FullName() string {
	return m.LastName + " " + m.FirstName
}
