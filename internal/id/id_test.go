package id

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatReference(t *testing.T) {
	day := time.Date(2025, 1, 15, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, "TRF-20250115-000001", FormatReference(day, 1))
	assert.Equal(t, "TRF-20250115-000042", FormatReference(day, 42))
	assert.Equal(t, "TRF-20250115-123456", FormatReference(day, 123456))
}

func TestParseReference(t *testing.T) {
	day, seq, err := ParseReference("TRF-20251231-000099")
	require.NoError(t, err)
	assert.Equal(t, 2025, day.Year())
	assert.Equal(t, time.December, day.Month())
	assert.Equal(t, 31, day.Day())
	assert.Equal(t, 99, seq)
}

func TestParseReference_RoundTrip(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ref := FormatReference(day, 7)
	gotDay, gotSeq, err := ParseReference(ref)
	require.NoError(t, err)
	assert.True(t, day.Equal(gotDay))
	assert.Equal(t, 7, gotSeq)
}

func TestParseReference_Invalid(t *testing.T) {
	tests := []string{
		"",
		"TRF",
		"TRF-2025-01",
		"ABC-20250115-000001",
		"TRF-2025011X-000001",
		"TRF-20250115-abc",
		"TRF-20250115-000000",
	}
	for _, ref := range tests {
		_, _, err := ParseReference(ref)
		assert.Error(t, err, "ParseReference(%q) should fail", ref)
	}
}

func TestLuhnValid(t *testing.T) {
	assert.True(t, LuhnValid("4539578763621486"))
	assert.True(t, LuhnValid("79927398713"))
	assert.False(t, LuhnValid("79927398710"))
	assert.False(t, LuhnValid("4539x78763621486"))
	assert.False(t, LuhnValid("7"))
}

func TestNewCardNumber(t *testing.T) {
	for i := 0; i < 20; i++ {
		n, err := NewCardNumber(nil)
		require.NoError(t, err)
		assert.Len(t, n, 16)
		assert.True(t, LuhnValid(n), "card %s should pass Luhn", n)
		assert.Equal(t, cardIIN, n[:len(cardIIN)])
	}
}

func TestNewCardNumber_ShortEntropy(t *testing.T) {
	_, err := NewCardNumber(bytes.NewReader(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generating card number")
}

func TestNewAccountNumber(t *testing.T) {
	n, err := NewAccountNumber(nil)
	require.NoError(t, err)
	assert.Len(t, n, 10)
	assert.Equal(t, byte('7'), n[0])
	for _, c := range n {
		assert.True(t, c >= '0' && c <= '9')
	}
}

func TestReferralCode(t *testing.T) {
	assert.Equal(t, "AMINA042", ReferralCode("Amina Haddad", 42))
	assert.Equal(t, "BOB007", ReferralCode("bob", 7))
	assert.Equal(t, "USER001", ReferralCode("123", 1))
	assert.Equal(t, "YACIN999", ReferralCode("Yacine B.", 1999))
}
