package domain

// Status is a user's self-reported availability.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusBusy      Status = "BUSY"
)

// Valid reports whether s is a recognised presence status.
func (s Status) Valid() bool {
	return s == StatusAvailable || s == StatusBusy
}
