package keycodec

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumKnownValues(t *testing.T) {
	cases := map[string]string{
		"":                 "012345",
		"a":                "5eghij",
		"abc":              "27oimn",
		"hello world":      "16kyy3",
		"Habcttq2k0x9y8z7": "auw8ig",
		"Mz9fu1k2m3n4p5q6": "1f6zlv",
		"Y0001234567890ab": "s9xlbk",
		"日本":               "nfuw01",
	}
	for input, want := range cases {
		assert.Equal(t, want, Checksum(input), "input %q", input)
	}
}

func TestChecksumDeterministic(t *testing.T) {
	inputs := []string{"", "x", strings.Repeat("z", 500), "H0a1tlpwu8qq12ab"}
	for _, in := range inputs {
		first := Checksum(in)
		assert.Len(t, first, ChecksumLength)
		assert.Equal(t, first, Checksum(in))
	}
}

func TestClassFor(t *testing.T) {
	assert.Equal(t, byte(ClassMinute), ClassFor(60))
	assert.Equal(t, byte(ClassHours), ClassFor(61))
	assert.Equal(t, byte(ClassHours), ClassFor(2*60*60))
	assert.Equal(t, byte(ClassDays3), ClassFor(3*24*60*60))
	assert.Equal(t, byte(ClassWeek), ClassFor(7*24*60*60))
	assert.Equal(t, byte(ClassMonth), ClassFor(30*24*60*60))
	assert.Equal(t, byte(ClassQuarter), ClassFor(90*24*60*60))
	assert.Equal(t, byte(ClassYear), ClassFor(365*24*60*60))
}

func TestMintRoundTrip(t *testing.T) {
	for _, validity := range []int64{1, 60, 3600, 86400, 30 * 86400, 360 * 86400} {
		before := time.Now().Unix()
		key, err := Mint(validity)
		require.NoError(t, err)
		assert.Len(t, key, KeyLength)
		assert.Equal(t, ClassFor(validity), key[0])

		if validity <= MaxJitterSeconds {
			// jitter may place the expiry in the past
			continue
		}

		d, err := Decode(key)
		require.NoError(t, err, "key %s", key)
		assert.Equal(t, key[:IdentifierLength], d.Identifier)
		assert.GreaterOrEqual(t, d.Expiry.Unix(), before+validity-MaxJitterSeconds)
		assert.LessOrEqual(t, d.Expiry.Unix(), time.Now().Unix()+validity+MaxJitterSeconds)
	}
}

func TestMintRejectsNonPositiveValidity(t *testing.T) {
	_, err := Mint(0)
	assert.Error(t, err)
	_, err = Mint(-5)
	assert.Error(t, err)
}

func TestMintOverflow(t *testing.T) {
	c := Codec{Now: func() time.Time { return time.Unix(2_170_000_000, 0) }}
	_, err := c.Mint(100 * 24 * 60 * 60)
	assert.ErrorIs(t, err, ErrExpiryOverflow)
}

func TestMintUsesInjectedClock(t *testing.T) {
	now := time.Unix(1_790_000_000, 0)
	c := Codec{Now: func() time.Time { return now }}

	key, err := c.Mint(3600)
	require.NoError(t, err)

	expiry, err := strconv.ParseInt(key[IdentifierLength:IdentifierLength+TimestampLength], 36, 64)
	require.NoError(t, err)
	assert.InDelta(t, now.Unix()+3600, expiry, MaxJitterSeconds)
}

func TestDecodeTamperedChecksum(t *testing.T) {
	key, err := Mint(3600)
	require.NoError(t, err)

	for pos := KeyLength - ChecksumLength; pos < KeyLength; pos++ {
		b := []byte(key)
		if b[pos] == 'a' {
			b[pos] = 'b'
		} else {
			b[pos] = 'a'
		}
		_, err := Decode(string(b))
		assert.ErrorIs(t, err, ErrChecksum, "position %d", pos)
	}
}

func TestDecodeTamperedPayload(t *testing.T) {
	key, err := Mint(3600)
	require.NoError(t, err)

	b := []byte(key)
	if b[12] == '0' {
		b[12] = '1'
	} else {
		b[12] = '0'
	}
	_, err = Decode(string(b))
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestDecodeFormatErrors(t *testing.T) {
	key, err := Mint(3600)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":         "",
		"too short":     key[:21],
		"too long":      key + "a",
		"legacy length": key[:20],
		"bad class":     "Z" + key[1:],
		"uppercase":     key[:5] + "A" + key[6:],
		"symbol":        key[:15] + "-" + key[16:],
		"zero expiry":   key[:4] + "000000" + key[10:],
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(input)
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestDecodeTrimsWhitespace(t *testing.T) {
	key, err := Mint(3600)
	require.NoError(t, err)

	_, err = Decode("  " + key + "\n")
	assert.NoError(t, err)
}

func TestDecodeExpired(t *testing.T) {
	now := time.Unix(1_790_000_000, 0)
	c := Codec{Now: func() time.Time { return now }}

	key, err := c.Mint(3600)
	require.NoError(t, err)

	later := Codec{Now: func() time.Time { return now.Add(2 * time.Hour) }}
	d, err := later.Decode(key)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, key[:IdentifierLength], d.Identifier)
	assert.False(t, d.Expiry.IsZero())
}

func TestDecodeExpiryBoundary(t *testing.T) {
	now := time.Unix(1_790_000_000, 0)
	key, err := Codec{Now: func() time.Time { return now }}.Mint(3600)
	require.NoError(t, err)

	d, err := Codec{Now: func() time.Time { return now }}.Decode(key)
	require.NoError(t, err)

	at := func(ts time.Time) Codec { return Codec{Now: func() time.Time { return ts }} }

	_, err = at(d.Expiry.Add(-time.Millisecond)).Decode(key)
	assert.NoError(t, err)

	_, err = at(d.Expiry).Decode(key)
	assert.ErrorIs(t, err, ErrExpired)

	_, err = at(d.Expiry.Add(500 * time.Millisecond)).Decode(key)
	assert.ErrorIs(t, err, ErrExpired)
}
