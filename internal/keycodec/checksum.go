package keycodec

import (
	"strconv"
	"unicode/utf16"
)

const (
	alphabet       = "0123456789abcdefghijklmnopqrstuvwxyz"
	ChecksumLength = 6
)

// Checksum derives the 6-character integrity code of input.
//
// Both accumulators are int32 so every step wraps with two's-complement
// semantics. Input is consumed as UTF-16 code units, which keeps the result
// identical to keys minted by browser-side tooling.
func Checksum(input string) string {
	var h1, h2 int32
	for _, u := range utf16.Encode([]rune(input)) {
		c := int32(u)
		h1 = (h1 << 5) - h1 + c
		h2 = ((h2 << 3) + h2) ^ c
	}

	combined := abs(h1) + abs(h2)

	sum := strconv.FormatInt(combined, 36)
	if len(sum) >= ChecksumLength {
		return sum[:ChecksumLength]
	}

	buf := []byte(sum)
	for i := len(buf); i < ChecksumLength; i++ {
		buf = append(buf, alphabet[(combined+int64(i))%int64(len(alphabet))])
	}
	return string(buf)
}

func abs(v int32) int64 {
	n := int64(v)
	if n < 0 {
		return -n
	}
	return n
}
