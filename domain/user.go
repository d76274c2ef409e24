package domain

import "time"

// User represents a connected participant. Users live only for the duration
// of their connection and are never persisted.
type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	ConnectedAt time.Time `json:"connectedAt"`
}
