package ton

import (
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/tlb"
)

// ParseTON converts a positive decimal TON amount ("1.5") into nanoTON.
func ParseTON(s string) (uint64, error) {
	c, err := tlb.FromTON(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid TON amount %q: %w", s, err)
	}
	n := c.Nano()
	if n.Sign() <= 0 || !n.IsUint64() {
		return 0, fmt.Errorf("TON amount %q out of range", s)
	}
	return n.Uint64(), nil
}

// FormatTON renders nanoTON as a decimal TON string.
func FormatTON(nano uint64) string {
	return tlb.FromNanoTONU(nano).String()
}
