package models

import "time"

type Bid struct {
	ID        string     `json:"id"`
	Listing   ListingRef `json:"listing"`
	BidderID  string     `json:"bidder_id"`
	Amount    int64      `json:"amount"`
	CreatedAt time.Time  `json:"created_at"`
}

type AuctionDepositStatus string

const (
	DepositPaid     AuctionDepositStatus = "PAID"
	DepositRefunded AuctionDepositStatus = "REFUNDED"
)

type AuctionDeposit struct {
	ID        string               `json:"id"`
	Listing   ListingRef           `json:"listing"`
	BidderID  string               `json:"bidder_id"`
	Amount    int64                `json:"amount"`
	Status    AuctionDepositStatus `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}
