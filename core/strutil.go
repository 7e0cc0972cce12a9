package core

// itoa converts an integer to a string without using fmt package
// This is a lightweight alternative for embedded systems
func itoa(n int64) string {
	if n == 0 {
		return "0"
	}

	var buf [20]byte
	pos := len(buf)

	// Work on the negative value so the minimum int64 does not overflow
	negative := n < 0
	if !negative {
		n = -n
	}
	for n < 0 {
		pos--
		buf[pos] = byte('0' - n%10)
		n /= 10
	}

	if negative {
		pos--
		buf[pos] = '-'
	}

	return string(buf[pos:])
}
