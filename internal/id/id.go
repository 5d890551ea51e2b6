package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const referencePrefix = "TRF"

// FormatReference returns a transfer reference like "TRF-20250115-000042".
func FormatReference(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%06d", referencePrefix, day.UTC().Format("20060102"), seq)
}

// ParseReference parses "TRF-20250115-000042" into its day and sequence.
func ParseReference(ref string) (day time.Time, seq int, err error) {
	parts := strings.SplitN(ref, "-", 3)
	if len(parts) != 3 || parts[0] != referencePrefix {
		return time.Time{}, 0, fmt.Errorf("invalid reference format: %q", ref)
	}

	day, err = time.Parse("20060102", parts[1])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid date in reference %q: %w", ref, err)
	}

	seq, err = strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid sequence in reference %q: %w", ref, err)
	}
	if seq <= 0 {
		return time.Time{}, 0, fmt.Errorf("invalid sequence in reference %q: must be positive", ref)
	}

	return day, seq, nil
}

// cardIIN is the issuer prefix of every generated card number.
const cardIIN = "627414"

// NewCardNumber returns a random 16-digit card number with a valid Luhn check
// digit, reading randomness from r (crypto/rand when nil).
func NewCardNumber(r io.Reader) (string, error) {
	body, err := randomDigits(r, 15-len(cardIIN))
	if err != nil {
		return "", fmt.Errorf("generating card number: %w", err)
	}
	partial := cardIIN + body
	return partial + strconv.Itoa(luhnCheckDigit(partial)), nil
}

// accountPrefix keeps account numbers free of leading zeros.
const accountPrefix = "7"

// NewAccountNumber returns a random 10-digit account number.
func NewAccountNumber(r io.Reader) (string, error) {
	n, err := randomDigits(r, 10-len(accountPrefix))
	if err != nil {
		return "", fmt.Errorf("generating account number: %w", err)
	}
	return accountPrefix + n, nil
}

// LuhnValid reports whether number is all digits and passes the Luhn check.
func LuhnValid(number string) bool {
	if len(number) < 2 {
		return false
	}
	for _, c := range number {
		if c < '0' || c > '9' {
			return false
		}
	}
	return luhnCheckDigit(number[:len(number)-1]) == int(number[len(number)-1]-'0')
}

// luhnCheckDigit computes the digit that makes partial+digit Luhn-valid.
func luhnCheckDigit(partial string) int {
	sum := 0
	double := true
	for i := len(partial) - 1; i >= 0; i-- {
		d := int(partial[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

func randomDigits(r io.Reader, n int) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(r, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// ReferralCode derives an uppercase referral code from a name and a numeric
// suffix, e.g. ("Amina Haddad", 42) -> "AMINA042".
func ReferralCode(name string, suffix int) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(name) {
		if c >= 'A' && c <= 'Z' {
			b.WriteRune(c)
		}
		if b.Len() == 5 {
			break
		}
	}
	if b.Len() == 0 {
		b.WriteString("USER")
	}
	return fmt.Sprintf("%s%03d", b.String(), suffix%1000)
}
