package domain

import "time"

// DeferredDeletion is a set of messages scheduled for removal at DueAt.
type DeferredDeletion struct {
	ID         string      `json:"id"          db:"id"`
	ChatID     ChatID      `json:"chat_id"     db:"chat_id"`
	MessageIDs []MessageID `json:"message_ids" db:"-"`
	DueAt      time.Time   `json:"due_at"      db:"due_at"`
	CreatedAt  time.Time   `json:"created_at"  db:"created_at"`
}

// Remaining returns how long until the deletion is due, never negative.
func (d *DeferredDeletion) Remaining(now time.Time) time.Duration {
	if left := d.DueAt.Sub(now); left > 0 {
		return left
	}
	return 0
}
