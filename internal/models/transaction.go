package models

import "time"

type TransactionType string

const (
	TxnSale    TransactionType = "SALE"
	TxnAuction TransactionType = "AUCTION"
)

type TransactionStatus string

const (
	TxnPending              TransactionStatus = "PENDING"
	TxnDepositPaid          TransactionStatus = "DEPOSIT_PAID"
	TxnAppointmentScheduled TransactionStatus = "APPOINTMENT_SCHEDULED"
	TxnPaid                 TransactionStatus = "PAID"
	TxnShipped              TransactionStatus = "SHIPPED"
	TxnCompleted            TransactionStatus = "COMPLETED"
	TxnDisputed             TransactionStatus = "DISPUTED"
	TxnRejected             TransactionStatus = "REJECTED"
	TxnCancelled            TransactionStatus = "CANCELLED"
)

type PaymentMethod string

const (
	PayWallet PaymentMethod = "WALLET"
	PayMomo   PaymentMethod = "MOMO"
)

func (m PaymentMethod) Valid() bool { return m == PayWallet || m == PayMomo }

// TransactionItem is one listing settled by a cart child transaction.
type TransactionItem struct {
	Listing ListingRef `json:"listing"`
	Price   int64      `json:"price"`
}

type Transaction struct {
	ID                   string            `json:"id"`
	ParentID             *string           `json:"parent_id,omitempty"`
	BuyerID              string            `json:"buyer_id"`
	SellerID             string            `json:"seller_id,omitempty"`
	Listing              *ListingRef       `json:"listing,omitempty"`
	Items                []TransactionItem `json:"items,omitempty"`
	Type                 TransactionType   `json:"type"`
	Status               TransactionStatus `json:"status"`
	FinalPrice           int64             `json:"final_price"`
	AmountDue            int64             `json:"amount_due"`
	PaidAmount           int64             `json:"paid_amount"`
	PaymentMethod        PaymentMethod     `json:"payment_method"`
	GatewayTransID       *string           `json:"gateway_trans_id,omitempty"`
	PaymentDeadline      *time.Time        `json:"payment_deadline,omitempty"`
	AppointmentDeadline  *time.Time        `json:"appointment_deadline,omitempty"`
	ConfirmationDeadline *time.Time        `json:"confirmation_deadline,omitempty"`
	DisputeReason        *string           `json:"dispute_reason,omitempty"`
	DisputeEvidence      []string          `json:"dispute_evidence,omitempty"`
	DisputedAt           *time.Time        `json:"disputed_at,omitempty"`
	ContractURL          *string           `json:"contract_url,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Listings returns every listing this transaction settles.
func (t Transaction) Listings() []ListingRef {
	if t.Listing != nil {
		return []ListingRef{*t.Listing}
	}
	out := make([]ListingRef, 0, len(t.Items))
	for _, it := range t.Items {
		out = append(out, it.Listing)
	}
	return out
}

func (t Transaction) IsVehicle() bool {
	return t.Listing != nil && t.Listing.Kind == KindVehicle
}

// IsParent reports whether t only groups cart children.
func (t Transaction) IsParent() bool {
	return t.ParentID == nil && t.Listing == nil && t.SellerID == ""
}

func (t Transaction) SaleType() SaleType {
	if t.Type == TxnAuction {
		return SaleAuction
	}
	return SaleRegular
}

// Outstanding is what the buyer still owes.
func (t Transaction) Outstanding() int64 { return t.FinalPrice - t.PaidAmount }
