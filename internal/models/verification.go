package models

import "time"

// Verification purposes. A session issued for one purpose cannot authorize
// the other flow.
const (
	PurposeAdmission = "admission"
	PurposeRecovery  = "recovery"
)

// VerificationSession is the ephemeral state of one phone challenge. It lives
// only in redis under a TTL and is destroyed on consume or cancel.
type VerificationSession struct {
	VerificationID string    `json:"verification_id"`
	PhoneNumber    string    `json:"phone_number"`
	Purpose        string    `json:"purpose"`
	CodeHash       string    `json:"code_hash"`
	CodeSalt       string    `json:"code_salt"`
	Attempts       int       `json:"attempts"`
	IssuedAt       time.Time `json:"issued_at"`
}

// VerifiedPhone is the one-shot proof returned by a successful confirm. It
// authorizes exactly one domain action (admission promote, recovery lookup)
// and has no standing-login semantics.
type VerifiedPhone struct {
	PhoneNumber string    `json:"phone_number"`
	Purpose     string    `json:"purpose"`
	VerifiedAt  time.Time `json:"verified_at"`
}
