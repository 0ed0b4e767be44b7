package http

import "math"

// parseDecimal parses a non-negative decimal integer. Signs, spaces and
// overflow are rejected.
func parseDecimal(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		d := int64(c - '0')
		if n > (math.MaxInt64-d)/10 {
			return 0, false
		}
		n = n*10 + d
	}
	return n, true
}

// parseHex parses a chunk size. At most 15 digits are accepted so the result
// always fits an int64.
func parseHex(b []byte) (int64, bool) {
	if len(b) == 0 || len(b) > 15 {
		return 0, false
	}
	var n int64
	for _, c := range b {
		v := hexToByte(c)
		if v == 255 {
			return 0, false
		}
		n = n<<4 | int64(v)
	}
	return n, true
}

func hexToByte(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10
	}
	return 255 // Invalid hex
}

// appendHex writes n in lowercase hex without allocation.
func appendHex(dst []byte, n int) []byte {
	if n == 0 {
		return append(dst, '0')
	}

	const hexDigits = "0123456789abcdef"
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = hexDigits[n&0xF]
		n >>= 4
	}
	return append(dst, buf[i:]...)
}

// appendInt writes a non-negative n in decimal without allocation.
func appendInt(dst []byte, n int) []byte {
	if n == 0 {
		return append(dst, '0')
	}

	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = '0' + byte(n%10)
		n /= 10
	}
	return append(dst, buf[i:]...)
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

func trimSpace(b []byte) []byte {
	for len(b) > 0 && isSpace(b[0]) {
		b = b[1:]
	}
	for len(b) > 0 && isSpace(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}
