package protocol

import "powerfeed/errcode"

// AppendVLQInt appends v in the variable length encoding used for command
// ids and arguments: seven bits per byte, most significant first, with the
// top bit marking continuation. Small negative numbers stay short.
func AppendVLQInt(dst []byte, v int32) []byte {
	if !(-(1<<26) <= v && v < (3<<26)) {
		dst = append(dst, byte((v>>28)&0x7F)|0x80)
	}
	if !(-(1<<19) <= v && v < (3<<19)) {
		dst = append(dst, byte((v>>21)&0x7F)|0x80)
	}
	if !(-(1<<12) <= v && v < (3<<12)) {
		dst = append(dst, byte((v>>14)&0x7F)|0x80)
	}
	if !(-(1<<5) <= v && v < (3<<5)) {
		dst = append(dst, byte((v>>7)&0x7F)|0x80)
	}
	return append(dst, byte(v&0x7F))
}

// AppendVLQUint appends an unsigned value.
func AppendVLQUint(dst []byte, v uint32) []byte {
	return AppendVLQInt(dst, int32(v))
}

// AppendVLQString appends a length prefixed string.
func AppendVLQString(dst []byte, s string) []byte {
	dst = AppendVLQUint(dst, uint32(len(s)))
	return append(dst, s...)
}

// ReadVLQInt decodes a signed value and advances data past it.
func ReadVLQInt(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, errcode.BadFrame
	}

	c := uint32(buf[0])
	buf = buf[1:]
	v := c & 0x7F
	if c&0x60 == 0x60 {
		// Sign extend
		v |= ^uint32(0x1F)
	}
	for c&0x80 != 0 {
		if len(buf) == 0 {
			return 0, errcode.BadFrame
		}
		c = uint32(buf[0])
		buf = buf[1:]
		v = v<<7 | c&0x7F
	}

	*data = buf
	return int32(v), nil
}

// ReadVLQUint decodes an unsigned value and advances data past it.
func ReadVLQUint(data *[]byte) (uint32, error) {
	v, err := ReadVLQInt(data)
	return uint32(v), err
}

// ReadVLQBytes decodes a length prefixed byte string. The result aliases data.
func ReadVLQBytes(data *[]byte) ([]byte, error) {
	rest := *data
	n, err := ReadVLQUint(&rest)
	if err != nil {
		return nil, err
	}
	if uint32(len(rest)) < n {
		return nil, errcode.BadFrame
	}
	*data = rest[n:]
	return rest[:n], nil
}

// ReadVLQString decodes a length prefixed string.
func ReadVLQString(data *[]byte) (string, error) {
	b, err := ReadVLQBytes(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
