package model

import (
	"time"
)

// Principal is one chat identity. ID is the Telegram user id.
type Principal struct {
	ID            int64     `db:"id" json:"id"`
	Username      string    `db:"username" json:"username,omitempty"`
	DisplayName   string    `db:"display_name" json:"displayName,omitempty"`
	WalletAddress string    `db:"wallet_address" json:"walletAddress,omitempty"`
	Subscribed    bool      `db:"subscribed" json:"subscribed"`
	Balance       int64     `db:"balance" json:"balance"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

func (p *Principal) HasWallet() bool {
	return p.WalletAddress != ""
}

type CreatePrincipalParams struct {
	ID          int64
	Username    string
	DisplayName string
	Balance     int64
}

// LedgerTotals aggregates the principals table for gauges and the ops API.
type LedgerTotals struct {
	Principals int64 `db:"principals" json:"principals"`
	WithWallet int64 `db:"with_wallet" json:"withWallet"`
	Subscribed int64 `db:"subscribed" json:"subscribed"`
	Balance    int64 `db:"balance" json:"balance"`
}
