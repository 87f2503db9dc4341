package models

import (
	"fmt"
	"time"
)

type ListingKind string

const (
	KindVehicle ListingKind = "VEHICLE"
	KindBattery ListingKind = "BATTERY"
)

func (k ListingKind) Valid() bool { return k == KindVehicle || k == KindBattery }

// ListingRef addresses a vehicle or a battery listing.
type ListingRef struct {
	Kind ListingKind `json:"kind"`
	ID   string      `json:"id"`
}

func (r ListingRef) String() string { return fmt.Sprintf("%s:%s", r.Kind, r.ID) }

type ListingStatus string

const (
	ListingAvailable              ListingStatus = "AVAILABLE"
	ListingReserved               ListingStatus = "RESERVED"
	ListingSold                   ListingStatus = "SOLD"
	ListingAuctionPendingApproval ListingStatus = "AUCTION_PENDING_APPROVAL"
	ListingAuctionLive            ListingStatus = "AUCTION_LIVE"
	ListingDelisted               ListingStatus = "DELISTED"
)

type Listing struct {
	Ref           ListingRef    `json:"ref"`
	SellerID      string        `json:"seller_id"`
	Title         string        `json:"title"`
	Price         int64         `json:"price"`
	Status        ListingStatus `json:"status"`
	IsAuction     bool          `json:"is_auction"`
	StartingPrice int64         `json:"starting_price"`
	BidIncrement  int64         `json:"bid_increment"`
	DepositAmount int64         `json:"deposit_amount"`
	AuctionEndAt  *time.Time    `json:"auction_end_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
