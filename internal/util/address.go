package util

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TON user-friendly address tags.
const (
	tagBounceable    byte = 0x11
	tagNonBounceable byte = 0x51
	tagTestOnly      byte = 0x80

	friendlyLen        = 36
	friendlyEncodedLen = 48
)

var ErrInvalidAddress = errors.New("invalid TON address")

// TonAddress is a standard (non-extended) TON account address.
type TonAddress struct {
	Workchain int8
	Hash      [32]byte
	Testnet   bool
}

// ParseTonAddress accepts both the raw "wc:hex" form and the 48 character
// user-friendly form in either base64 alphabet.
func ParseTonAddress(s string) (TonAddress, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ":") {
		return parseRaw(s)
	}
	return parseFriendly(s)
}

func parseRaw(s string) (TonAddress, error) {
	var addr TonAddress

	wcPart, hashPart, _ := strings.Cut(s, ":")
	wc, err := strconv.ParseInt(wcPart, 10, 8)
	if err != nil {
		return addr, fmt.Errorf("%w: bad workchain %q", ErrInvalidAddress, wcPart)
	}
	if len(hashPart) != 64 {
		return addr, fmt.Errorf("%w: account id must be 64 hex characters", ErrInvalidAddress)
	}
	if _, err := hex.Decode(addr.Hash[:], []byte(hashPart)); err != nil {
		return addr, fmt.Errorf("%w: account id is not hex", ErrInvalidAddress)
	}
	addr.Workchain = int8(wc)
	return addr, nil
}

func parseFriendly(s string) (TonAddress, error) {
	var addr TonAddress

	if len(s) != friendlyEncodedLen {
		return addr, fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidAddress, friendlyEncodedLen, len(s))
	}

	// The url-safe alphabet replaces + and / with - and _.
	raw, err := base64.URLEncoding.DecodeString(strings.NewReplacer("+", "-", "/", "_").Replace(s))
	if err != nil || len(raw) != friendlyLen {
		return addr, fmt.Errorf("%w: not base64", ErrInvalidAddress)
	}

	if got, want := binary.BigEndian.Uint16(raw[34:]), crc16XModem(raw[:34]); got != want {
		return addr, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}

	tag := raw[0]
	if tag&tagTestOnly != 0 {
		addr.Testnet = true
		tag &^= tagTestOnly
	}
	if tag != tagBounceable && tag != tagNonBounceable {
		return addr, fmt.Errorf("%w: unknown tag 0x%02x", ErrInvalidAddress, raw[0])
	}

	addr.Workchain = int8(raw[1])
	copy(addr.Hash[:], raw[2:34])
	return addr, nil
}

// Raw returns the "wc:hex" form.
func (a TonAddress) Raw() string {
	return fmt.Sprintf("%d:%s", a.Workchain, hex.EncodeToString(a.Hash[:]))
}

// UserFriendly returns the url-safe base64 form.
func (a TonAddress) UserFriendly(bounceable bool) string {
	buf := make([]byte, friendlyLen)
	buf[0] = tagNonBounceable
	if bounceable {
		buf[0] = tagBounceable
	}
	if a.Testnet {
		buf[0] |= tagTestOnly
	}
	buf[1] = byte(a.Workchain)
	copy(buf[2:34], a.Hash[:])
	binary.BigEndian.PutUint16(buf[34:], crc16XModem(buf[:34]))
	return base64.URLEncoding.EncodeToString(buf)
}

// NormalizeTonAddress parses any accepted form and renders it as the
// non-bounceable user-friendly address stored in the ledger. testnet marks
// raw addresses as test-only; friendly addresses keep their own flag.
func NormalizeTonAddress(s string, testnet bool) (string, error) {
	addr, err := ParseTonAddress(s)
	if err != nil {
		return "", err
	}
	if testnet {
		addr.Testnet = true
	}
	return addr.UserFriendly(false), nil
}

func crc16XModem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
