package nostr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Bech32 prefixes for public and secret keys.
const (
	PrefixPublicKey = "npub"
	PrefixSecretKey = "nsec"
)

// ErrInvalidKey is returned for keys that are neither 64-char hex nor a
// valid bech32 encoding with the expected prefix.
var ErrInvalidKey = errors.New("invalid key")

// IsHexKey reports whether s is a 32-byte key in hex.
func IsHexKey(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// DecodePublicKey accepts a hex or npub public key and returns lowercase hex.
func DecodePublicKey(input string) (string, error) {
	return decodeKey(input, PrefixPublicKey)
}

// DecodeSecretKey accepts a hex or nsec secret key and returns lowercase hex.
func DecodeSecretKey(input string) (string, error) {
	return decodeKey(input, PrefixSecretKey)
}

// EncodePublicKey returns the npub form of a hex public key.
func EncodePublicKey(hexKey string) (string, error) {
	return encodeKey(hexKey, PrefixPublicKey)
}

// EncodeSecretKey returns the nsec form of a hex secret key.
func EncodeSecretKey(hexKey string) (string, error) {
	return encodeKey(hexKey, PrefixSecretKey)
}

func decodeKey(input, prefix string) (string, error) {
	input = strings.TrimSpace(input)
	if IsHexKey(input) {
		return strings.ToLower(input), nil
	}
	if !strings.HasPrefix(strings.ToLower(input), prefix+"1") {
		return "", fmt.Errorf("%w: expected hex or %s", ErrInvalidKey, prefix)
	}

	hrp, data, err := bech32.Decode(input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if hrp != prefix {
		return "", fmt.Errorf("%w: unexpected prefix %q", ErrInvalidKey, hrp)
	}

	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("%w: decoded %d bytes", ErrInvalidKey, len(raw))
	}
	return hex.EncodeToString(raw), nil
}

func encodeKey(hexKey, prefix string) (string, error) {
	if !IsHexKey(hexKey) {
		return "", ErrInvalidKey
	}
	raw, _ := hex.DecodeString(hexKey)
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, data)
}
