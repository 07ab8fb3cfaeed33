package model

import "math/big"

// PurchaseRequest is a player's claim that an on-chain payment bought boosters.
type PurchaseRequest struct {
	FID           int64
	Kind          BoosterKind
	Quantity      int64
	TransactionID string
}

// VerificationReason classifies a failed payment verification.
type VerificationReason string

const (
	ReasonNone               VerificationReason = ""
	ReasonNotFound           VerificationReason = "NotFound"
	ReasonUnconfirmed        VerificationReason = "Unconfirmed"
	ReasonReverted           VerificationReason = "Reverted"
	ReasonWrongPayer         VerificationReason = "WrongPayer"
	ReasonInsufficientAmount VerificationReason = "InsufficientAmount"
	ReasonRPCUnavailable     VerificationReason = "RpcUnavailable"
)

// Retryable reports whether the outcome is indeterminate and may be retried.
func (r VerificationReason) Retryable() bool {
	return r == ReasonRPCUnavailable
}

// VerificationResult is the outcome of checking a payment on chain.
type VerificationResult struct {
	Verified    bool
	BlockNumber uint64
	Payer       string
	Amount      *big.Int
	Reason      VerificationReason
}

// Consumed transaction states. Stores that write the marker and the inventory
// in one transaction only ever use TxStatusCompleted.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
)

// ConsumedTransaction records the first and only use of a payment transaction.
type ConsumedTransaction struct {
	TransactionID string      `json:"transactionId"`
	FID           int64       `json:"fid"`
	Kind          BoosterKind `json:"kind"`
	Quantity      int64       `json:"quantity"`
	Timestamp     int64       `json:"timestamp"`
	Status        string      `json:"status"`
}
