package model

import "time"

// TrashEntry is a soft-deleted request waiting for restore or purge.
type TrashEntry struct {
	ID            string    `json:"id"`
	Request       Request   `json:"request"`
	DeletedAt     time.Time `json:"deleted_at"`
	DeletedByID   string    `json:"deleted_by_id"`
	DeletedByName string    `json:"deleted_by_name"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the recovery window has closed at now.
func (e *TrashEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TrashItem is the listing view of a trash entry.
type TrashItem struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Department    string    `json:"department"`
	RequesterName string    `json:"requester_name"`
	DeletedAt     time.Time `json:"deleted_at"`
	DeletedByName string    `json:"deleted_by_name"`
	ExpiresAt     time.Time `json:"expires_at"`
}
