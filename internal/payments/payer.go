package payments

import (
	"errors"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// ErrInvalidPayer is returned for a payer account that is not a valid phone number.
var ErrInvalidPayer = errors.New("invalid payer phone number")

// NormalizePayer parses a phone number in region and returns it as
// international digits without the leading plus, e.g. 254712345678.
// Numbers already written as international digits are accepted too.
func NormalizePayer(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidPayer
	}
	candidates := []string{raw}
	if !strings.HasPrefix(raw, "+") {
		candidates = append(candidates, "+"+raw)
	}
	for _, c := range candidates {
		num, err := libphonenumber.Parse(c, region)
		if err != nil || !libphonenumber.IsValidNumber(num) {
			continue
		}
		return strings.TrimPrefix(libphonenumber.Format(num, libphonenumber.E164), "+"), nil
	}
	return "", ErrInvalidPayer
}
