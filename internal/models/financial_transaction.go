package models

import "time"

type FinancialTxType string

const (
	FinTxDeposit              FinancialTxType = "DEPOSIT"
	FinTxPurchase             FinancialTxType = "PURCHASE"
	FinTxRefund               FinancialTxType = "REFUND"
	FinTxAuctionDeposit       FinancialTxType = "AUCTION_DEPOSIT"
	FinTxAuctionDepositRefund FinancialTxType = "AUCTION_DEPOSIT_REFUND"
	FinTxCommissionFee        FinancialTxType = "COMMISSION_FEE"
)

type FinancialTxStatus string

const (
	FinTxPending   FinancialTxStatus = "PENDING"
	FinTxCompleted FinancialTxStatus = "COMPLETED"
	FinTxCancelled FinancialTxStatus = "CANCELLED"
)

type Gateway string

const (
	GatewayInternal Gateway = "INTERNAL"
	GatewayMomo     Gateway = "MOMO"
)

// FinancialTransaction is one immutable ledger entry against a wallet.
// Amount is signed: negative entries leave the wallet's available balance.
type FinancialTransaction struct {
	ID             string            `json:"id"`
	WalletID       string            `json:"wallet_id"`
	Amount         int64             `json:"amount"`
	Type           FinancialTxType   `json:"type"`
	Status         FinancialTxStatus `json:"status"`
	Gateway        Gateway           `json:"gateway"`
	GatewayTransID *string           `json:"gateway_trans_id,omitempty"`
	Description    string            `json:"description"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}
