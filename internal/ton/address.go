package ton

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

// ParseRawAddress parses "<workchain>:<64 hex>" into its parts.
func ParseRawAddress(raw string) (workchain int32, addrHash []byte, err error) {
	wcStr, hashHex, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, nil, fmt.Errorf("invalid raw address format: %s", raw)
	}
	wc, err := strconv.ParseInt(wcStr, 10, 32)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid workchain %q: %w", wcStr, err)
	}
	addrHash, err = hex.DecodeString(hashHex)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid address hash hex: %w", err)
	}
	if len(addrHash) != 32 {
		return 0, nil, fmt.Errorf("address hash must be 32 bytes, got %d", len(addrHash))
	}
	return int32(wc), addrHash, nil
}

// FormatRaw renders an address in the canonical raw form used as identity
// throughout the service.
func FormatRaw(workchain int32, addrHash []byte) string {
	return fmt.Sprintf("%d:%s", workchain, hex.EncodeToString(addrHash))
}

// NormalizeAddress accepts a raw or user-friendly (EQ.../UQ...) address and
// returns the raw form. Bounce and testnet flags do not change identity.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ":") {
		wc, h, err := ParseRawAddress(s)
		if err != nil {
			return "", err
		}
		return FormatRaw(wc, h), nil
	}
	a, err := address.ParseAddr(s)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", s, err)
	}
	return FormatRaw(a.Workchain(), a.Data()), nil
}

// ToAddress converts a raw address into a tonutils address for sending.
func ToAddress(raw string) (*address.Address, error) {
	wc, h, err := ParseRawAddress(raw)
	if err != nil {
		return nil, err
	}
	a := address.NewAddress(0, byte(wc), h)
	a.SetBounce(false)
	return a, nil
}

// Friendly returns the non-bounceable user-friendly form of raw, or raw
// itself when it cannot be parsed.
func Friendly(raw string, testnet bool) string {
	a, err := ToAddress(raw)
	if err != nil {
		return raw
	}
	a.SetTestnetOnly(testnet)
	return a.String()
}
