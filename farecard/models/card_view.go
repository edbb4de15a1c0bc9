package models

import "time"

// CardView is a read-only copy of a card and its access state.
type CardView struct {
	ID         string      `json:"id"`
	Number     string      `json:"number"`
	Balance    int64       `json:"balance"`
	State      AccessState `json:"state"`
	HolderName string      `json:"holder_name,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (c CardView) Enabled() bool {
	return c.State == AccessEnabled
}
