// Package provider wraps the external wallet-connection service. Each
// principal gets its own Provider handle; the handle is owned by exactly one
// connection session at a time.
package provider

import (
	"context"
	"errors"

	"github.com/openclaw/walletlink/internal/model"
)

var (
	// ErrWalletGone is returned when the wallet chosen for a pairing is no
	// longer offered by the provider.
	ErrWalletGone = errors.New("selected wallet is no longer available")

	// ErrUnavailable wraps transport and protocol failures.
	ErrUnavailable = errors.New("connection provider unavailable")
)

// Status is the live connection state reported after Initiate.
type Status struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address"`
}

type Provider interface {
	// Wallets returns the wallets the principal may pair, in display order.
	Wallets(ctx context.Context) ([]model.WalletDescriptor, error)
	// Initiate starts a pairing and returns the URI the wallet app opens.
	Initiate(ctx context.Context, wallet model.WalletDescriptor) (string, error)
	Status(ctx context.Context) (Status, error)
	// Close releases the handle. It is safe to call more than once.
	Close(ctx context.Context) error
}

type Factory interface {
	New(principalID int64) (Provider, error)
}

type FactoryFunc func(principalID int64) (Provider, error)

func (f FactoryFunc) New(principalID int64) (Provider, error) {
	return f(principalID)
}

// Watcher delivers a signal whenever a principal's status may have changed.
// Signals carry no data; the receiver re-reads Status.
type Watcher interface {
	Watch(ctx context.Context, principalID int64) (<-chan struct{}, error)
}

// FindWallet returns the descriptor named name, if present.
func FindWallet(wallets []model.WalletDescriptor, name string) (model.WalletDescriptor, bool) {
	for _, w := range wallets {
		if w.Name == name {
			return w, true
		}
	}
	return model.WalletDescriptor{}, false
}
