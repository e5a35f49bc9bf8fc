package models

import "time"

// MonthsPerYear is the fixed width of a dues record.
const MonthsPerYear = 12

// MonthNames are the short month labels used by the CSV export and payment
// notes, index 0 = January.
var MonthNames = [MonthsPerYear]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// DuesRecord holds one member's cumulative paid dollars per calendar month.
// Keyed by username rather than member id: the username is the stable join
// key even when a member record is recreated.
type DuesRecord struct {
	Username  string     `json:"username" db:"username"`
	Paid      []int      `json:"paid" db:"paid"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// PadMonths returns vals extended or truncated to exactly 12 cells.
func PadMonths(vals []int) []int {
	out := make([]int, MonthsPerYear)
	copy(out, vals)
	return out
}
