package storage

import (
	"time"
)

// VitalitySnapshot is the persisted machine state, a single row updated on
// every mutation so a restart resumes from the stored HP.
type VitalitySnapshot struct {
	HP        int64
	Phase     string
	UpdatedAt time.Time
}
