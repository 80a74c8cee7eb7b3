package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/walletlink/internal/model"
)

const (
	bridgeClientTimeout = 10 * time.Second
	maxErrorBody        = 512
)

// BridgeClient talks JSON over HTTP to the connector sidecar that speaks the
// wallet-connection protocol.
//
//	GET    /wallets
//	POST   /sessions/{principal}/connect   {"wallet": "..."} -> {"uri": "..."}
//	GET    /sessions/{principal}/status    -> {"connected": bool, "address": "..."}
//	DELETE /sessions/{principal}
//
// 410 Gone on connect or status means the wallet left the list.
type BridgeClient struct {
	baseURL string
	client  *http.Client
}

func NewBridgeClient(baseURL string) *BridgeClient {
	return &BridgeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: bridgeClientTimeout,
		},
	}
}

// New implements Factory.
func (c *BridgeClient) New(principalID int64) (Provider, error) {
	return &bridgeSession{client: c, principalID: principalID}, nil
}

type walletsResponse struct {
	Wallets []model.WalletDescriptor `json:"wallets"`
}

type connectRequest struct {
	Wallet string `json:"wallet"`
}

type connectResponse struct {
	URI string `json:"uri"`
}

type bridgeSession struct {
	client      *BridgeClient
	principalID int64

	closeOnce sync.Once
	closeErr  error
}

func (s *bridgeSession) sessionPath(suffix string) string {
	return fmt.Sprintf("/sessions/%d%s", s.principalID, suffix)
}

func (s *bridgeSession) Wallets(ctx context.Context) ([]model.WalletDescriptor, error) {
	var resp walletsResponse
	if err := s.client.do(ctx, http.MethodGet, "/wallets", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Wallets, nil
}

func (s *bridgeSession) Initiate(ctx context.Context, wallet model.WalletDescriptor) (string, error) {
	var resp connectResponse
	err := s.client.do(ctx, http.MethodPost, s.sessionPath("/connect"), connectRequest{Wallet: wallet.Name}, &resp)
	if err != nil {
		return "", err
	}
	if resp.URI == "" {
		return "", fmt.Errorf("%w: empty pairing uri", ErrUnavailable)
	}
	return resp.URI, nil
}

func (s *bridgeSession) Status(ctx context.Context) (Status, error) {
	var status Status
	err := s.client.do(ctx, http.MethodGet, s.sessionPath("/status"), nil, &status)
	return status, err
}

func (s *bridgeSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		err := s.client.do(ctx, http.MethodDelete, s.sessionPath(""), nil, nil)
		if err != nil {
			log.Warn().Err(err).Int64("principalId", s.principalID).Msg("bridge session close failed")
		}
		s.closeErr = err
	})
	return s.closeErr
}

func (c *BridgeClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Debug().Err(err).Str("method", method).Str("path", path).Dur("elapsed", elapsed).Msg("bridge request error")
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone:
		return ErrWalletGone
	case method == http.MethodDelete && resp.StatusCode == http.StatusNotFound:
		return nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("bridge request failed")
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrUnavailable, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrUnavailable, path, err)
	}
	return nil
}
