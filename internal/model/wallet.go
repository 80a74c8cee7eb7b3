package model

import "time"

// WalletDescriptor is one entry of the provider's wallet list.
type WalletDescriptor struct {
	Name         string `json:"name"`
	AppName      string `json:"appName,omitempty"`
	ImageURL     string `json:"imageUrl,omitempty"`
	AboutURL     string `json:"aboutUrl,omitempty"`
	UniversalURL string `json:"universalUrl,omitempty"`
}

// PairingArtifact is what the principal scans or opens to approve the pairing.
type PairingArtifact struct {
	SessionID string    `json:"sessionId"`
	Wallet    string    `json:"wallet"`
	URI       string    `json:"uri"`
	Image     []byte    `json:"-"`
	Deadline  time.Time `json:"deadline"`
}
