package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannels(t *testing.T) {
	assert.Equal(t, "sessions:42", SessionChannel(42))
	assert.Equal(t, "wallet-status:42", WalletStatusChannel(42))
	assert.Equal(t, "sessions:*", SessionPattern)
}

func TestNewClient(t *testing.T) {
	t.Run("rejects malformed url", func(t *testing.T) {
		_, err := NewClient("not-a-url")
		assert.Error(t, err)
	})
}
