// Package helpers provides small conversions shared by the command line
// tool and the facade: decimal amounts and hex strings.
package helpers

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatUnits formats an amount in base units as a decimal string.
// For example, FormatUnits(big.NewInt(150000000), 8) returns "1.5".
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	if decimals == 0 {
		return amount.String()
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(new(big.Int).Abs(amount), divisor, new(big.Int))

	sign := ""
	if amount.Sign() < 0 {
		sign = "-"
	}
	if frac.Sign() == 0 {
		return sign + whole.String()
	}

	fracStr := frac.String()
	fracStr = strings.Repeat("0", int(decimals)-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr, "0")
	return fmt.Sprintf("%s%s.%s", sign, whole.String(), fracStr)
}

// ParseUnits parses a non-negative decimal string into base units.
// For example, ParseUnits("1.5", 18) returns 1.5 ether in wei. More
// fractional digits than decimals is an error, not a truncation.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount string")
	}

	wholeStr, fracStr, _ := strings.Cut(s, ".")
	if wholeStr == "" && fracStr == "" {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}
	for _, part := range []string{wholeStr, fracStr} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return nil, fmt.Errorf("invalid character in amount: %c", c)
			}
		}
	}
	if len(fracStr) > int(decimals) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", s, decimals)
	}
	fracStr += strings.Repeat("0", int(decimals)-len(fracStr))

	amount, ok := new(big.Int).SetString(wholeStr+fracStr, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}
	return amount, nil
}

// ParseUint64Units is ParseUnits for amounts that must fit in a uint64,
// such as satoshis and atoms.
func ParseUint64Units(s string, decimals uint8) (uint64, error) {
	amount, err := ParseUnits(s, decimals)
	if err != nil {
		return 0, err
	}
	if !amount.IsUint64() {
		return 0, fmt.Errorf("amount overflow: %s", s)
	}
	return amount.Uint64(), nil
}
