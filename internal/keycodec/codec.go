package keycodec

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Key layout: identifier(4) + expiry timestamp(6) + padding(6) + checksum(6).
const (
	IdentifierLength = 4
	TimestampLength  = 6
	PaddingLength    = 6
	KeyLength        = IdentifierLength + TimestampLength + PaddingLength + ChecksumLength

	// MaxJitterSeconds bounds the random offset applied to minted expiries.
	MaxJitterSeconds = 30
)

var (
	ErrFormat         = errors.New("invalid key format")
	ErrChecksum       = errors.New("key checksum mismatch")
	ErrExpired        = errors.New("key has expired")
	ErrExpiryOverflow = errors.New("expiry does not fit the key timestamp field")
)

// Validity class tags, chosen by the requested validity window.
const (
	ClassMinute  = '1'
	ClassHours   = 'H'
	ClassDays3   = '3'
	ClassWeek    = '7'
	ClassMonth   = 'M'
	ClassQuarter = 'Q'
	ClassYear    = 'Y'
)

var classThresholds = []struct {
	maxSeconds int64
	tag        byte
}{
	{60, ClassMinute},
	{2 * 60 * 60, ClassHours},
	{3 * 24 * 60 * 60, ClassDays3},
	{7 * 24 * 60 * 60, ClassWeek},
	{30 * 24 * 60 * 60, ClassMonth},
	{90 * 24 * 60 * 60, ClassQuarter},
}

// ClassFor returns the class tag for a validity window in seconds.
func ClassFor(validitySeconds int64) byte {
	for _, th := range classThresholds {
		if validitySeconds <= th.maxSeconds {
			return th.tag
		}
	}
	return ClassYear
}

func isClass(b byte) bool {
	switch b {
	case ClassMinute, ClassHours, ClassDays3, ClassWeek, ClassMonth, ClassQuarter, ClassYear:
		return true
	}
	return false
}

// Decoded is the parsed content of a key.
type Decoded struct {
	Identifier string
	Class      byte
	Expiry     time.Time
}

// Codec mints and decodes keys. The zero value uses the wall clock and
// crypto/rand.
type Codec struct {
	Now  func() time.Time
	Rand io.Reader
}

// Default is the codec used by the package-level helpers.
var Default = Codec{}

func Mint(validitySeconds int64) (string, error) {
	return Default.Mint(validitySeconds)
}

func Decode(key string) (Decoded, error) {
	return Default.Decode(key)
}

func (c Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Codec) random() io.Reader {
	if c.Rand != nil {
		return c.Rand
	}
	return rand.Reader
}

// Mint creates a 22-character key whose embedded expiry is now plus
// validitySeconds, shifted by a random offset in [-30, 30] seconds.
func (c Codec) Mint(validitySeconds int64) (string, error) {
	if validitySeconds <= 0 {
		return "", fmt.Errorf("validity must be positive, got %d", validitySeconds)
	}

	offset, err := c.randomInt(2*MaxJitterSeconds + 1)
	if err != nil {
		return "", err
	}
	expiry := c.now().Unix() + validitySeconds + offset - MaxJitterSeconds

	ts := strconv.FormatInt(expiry, 36)
	if len(ts) > TimestampLength {
		return "", ErrExpiryOverflow
	}
	ts = strings.Repeat("0", TimestampLength-len(ts)) + ts

	suffix, err := c.randomString(IdentifierLength - 1)
	if err != nil {
		return "", err
	}
	padding, err := c.randomString(PaddingLength)
	if err != nil {
		return "", err
	}

	core := string(ClassFor(validitySeconds)) + suffix + ts + padding
	return core + Checksum(core), nil
}

// Decode parses key and verifies its checksum and expiry. On ErrExpired the
// returned Decoded is still populated.
func (c Codec) Decode(key string) (Decoded, error) {
	key = strings.TrimSpace(key)
	if len(key) != KeyLength {
		return Decoded{}, fmt.Errorf("%w: expected %d characters, got %d", ErrFormat, KeyLength, len(key))
	}
	if !isClass(key[0]) {
		return Decoded{}, fmt.Errorf("%w: unknown validity class %q", ErrFormat, key[0])
	}
	for i := 1; i < KeyLength; i++ {
		if strings.IndexByte(alphabet, key[i]) < 0 {
			return Decoded{}, fmt.Errorf("%w: invalid character at position %d", ErrFormat, i)
		}
	}

	identifier := key[:IdentifierLength]
	timestamp := key[IdentifierLength : IdentifierLength+TimestampLength]
	padding := key[IdentifierLength+TimestampLength : KeyLength-ChecksumLength]
	checksum := key[KeyLength-ChecksumLength:]

	expiry, err := strconv.ParseInt(timestamp, 36, 64)
	if err != nil || expiry <= 0 {
		return Decoded{}, fmt.Errorf("%w: invalid timestamp", ErrFormat)
	}

	if Checksum(identifier+timestamp+padding) != checksum {
		return Decoded{}, ErrChecksum
	}

	d := Decoded{
		Identifier: identifier,
		Class:      key[0],
		Expiry:     time.Unix(expiry, 0),
	}
	if !c.now().Before(d.Expiry) {
		return d, ErrExpired
	}
	return d, nil
}

func (c Codec) randomInt(n int64) (int64, error) {
	v, err := rand.Int(c.random(), big.NewInt(n))
	if err != nil {
		return 0, fmt.Errorf("failed to read random number: %w", err)
	}
	return v.Int64(), nil
}

func (c Codec) randomString(n int) (string, error) {
	buf := make([]byte, n)
	for i := range buf {
		idx, err := c.randomInt(int64(len(alphabet)))
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[idx]
	}
	return string(buf), nil
}
