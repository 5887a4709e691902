package units

import (
	"math/big"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals int
		want     string
	}{
		{"1.5", 18, "1500000000000000000"},
		{"1", 18, "1000000000000000000"},
		{"0", 18, "0"},
		{"0.0", 18, "0"},
		{".5", 2, "50"},
		{"5.", 2, "500"},
		{"007.25", 2, "725"},
		{"1.23456", 2, "123"},
		{"0.000000000000000000999", 18, "0"},
		{"12", 0, "12"},
		{" 3.1 ", 1, "31"},
		{"123456789012345678901234567890.123456789012345678", 18, "123456789012345678901234567890123456789012345678"},
	}
	for _, tc := range tests {
		got, err := ToBaseUnits(tc.in, tc.decimals)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestToBaseUnitsRejects(t *testing.T) {
	for _, in := range []string{"", "-1", "-0.5", "abc", "1.2.3", "1e18", ".", "0x10", "1,5"} {
		_, err := ToBaseUnits(in, 18)
		assert.ErrorIs(t, err, ErrInvalidAmount, in)
	}
	_, err := ToBaseUnits("1", -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

// Cross-checks the string arithmetic against big.Int on amounts with far more
// significant digits than a float64 holds.
func TestToBaseUnitsMatchesBigInt(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	digits := func(n int) string {
		var b strings.Builder
		for i := 0; i < n; i++ {
			b.WriteByte(byte('0' + rng.Intn(10)))
		}
		return b.String()
	}
	for i := 0; i < 500; i++ {
		whole := digits(1 + rng.Intn(30))
		frac := digits(rng.Intn(30))
		decimals := rng.Intn(25)
		in := whole
		if frac != "" {
			in += "." + frac
		}

		got, err := ToBaseUnits(in, decimals)
		require.NoError(t, err, in)

		num, ok := new(big.Int).SetString(whole+frac, 10)
		require.True(t, ok)
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
		den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(len(frac))), nil)
		want := new(big.Int).Div(new(big.Int).Mul(num, scale), den)

		assert.Equal(t, want.String(), got, "%s @ %d", in, decimals)
	}
}

func TestParsePositive(t *testing.T) {
	got, err := ParsePositive("001.500")
	require.NoError(t, err)
	assert.Equal(t, "1.5", got)

	got, err = ParsePositive(".25")
	require.NoError(t, err)
	assert.Equal(t, "0.25", got)

	for _, in := range []string{"0", "0.000", "-2", "two"} {
		_, err := ParsePositive(in)
		assert.ErrorIs(t, err, ErrInvalidAmount, in)
	}
}

func TestFormatUnits(t *testing.T) {
	got, err := FormatUnits("1500000000000000000", 18)
	require.NoError(t, err)
	assert.Equal(t, "1.5", got)

	got, err = FormatUnits("42", 18)
	require.NoError(t, err)
	assert.Equal(t, "0.000000000000000042", got)

	got, err = FormatUnits("0", 18)
	require.NoError(t, err)
	assert.Equal(t, "0", got)

	_, err = FormatUnits("1.0", 18)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestIsNonNegativeInteger(t *testing.T) {
	assert.True(t, IsNonNegativeInteger("0"))
	assert.True(t, IsNonNegativeInteger("1000000"))
	assert.False(t, IsNonNegativeInteger(""))
	assert.False(t, IsNonNegativeInteger("-1"))
	assert.False(t, IsNonNegativeInteger("1.0"))
}

func TestIsAddress(t *testing.T) {
	assert.True(t, IsAddress("0x"+strings.Repeat("A", 40)))
	assert.True(t, IsAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
	assert.False(t, IsAddress(strings.Repeat("a", 42)))
	assert.False(t, IsAddress("0x"+strings.Repeat("a", 39)))
	assert.False(t, IsAddress("0x"+strings.Repeat("g", 40)))
	assert.False(t, IsAddress(" 0x"+strings.Repeat("a", 40)))
}

func TestChecksumAddress(t *testing.T) {
	for _, want := range []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	} {
		assert.Equal(t, want, ChecksumAddress(strings.ToLower(want)))
	}
	assert.Equal(t, "nope", ChecksumAddress("nope"))
	assert.Equal(t, "0x5aAe...eAed", ShortAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
}
