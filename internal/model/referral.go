package model

import "time"

// ReferralEdge records that ReferrerID brought ReferralID in.
// A principal is referred at most once.
type ReferralEdge struct {
	ReferralID int64     `db:"referral_id" json:"referralId"`
	ReferrerID int64     `db:"referrer_id" json:"referrerId"`
	Credit     int64     `db:"credit" json:"credit"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

type ReferralStats struct {
	Link         string `json:"link"`
	InvitedCount int    `json:"invitedCount"`
}
