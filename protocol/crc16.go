package protocol

// CRC16 is the CRC-16/MCRF4XX checksum that protects each message block.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b = b ^ uint8(crc&0xFF)
		b = b ^ (b << 4)
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}

// appendTrailer appends the checksum of dst[start:] and the sync byte.
func appendTrailer(dst []byte, start int) []byte {
	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc), MessageValueSync)
}
