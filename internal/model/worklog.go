package model

import "time"

type Worklog struct {
	ID        string    `json:"id"`
	RequestID string    `json:"ticket_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Hours     float64   `json:"hours"`
	Note      *string   `json:"note"`
	LoggedAt  time.Time `json:"fecha"`
	CreatedAt time.Time `json:"created_at"`
}
