package models

import "time"

type Appointment struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transaction_id"`
	BuyerID       string     `json:"buyer_id"`
	SellerID      string     `json:"seller_id"`
	Deadline      time.Time  `json:"deadline"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	Location      string     `json:"location,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type CartItem struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Listing   ListingRef `json:"listing"`
	CreatedAt time.Time  `json:"created_at"`
}
