package models

import "time"

// Wallet holds a user's spendable and escrowed funds, in whole currency units.
type Wallet struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	AvailableBalance int64     `json:"available_balance"`
	LockedBalance    int64     `json:"locked_balance"`
	UpdatedAt        time.Time `json:"updated_at"`
}
