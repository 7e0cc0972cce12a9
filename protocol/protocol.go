// Package protocol implements the framed serial link between the power feed
// and a host computer.
//
// Every message block is
//
//	[len][seq][payload...][crc hi][crc lo][0x7E]
//
// where len counts the whole block, seq carries 0x10 in its high nibble and
// a 4 bit sequence number in its low nibble, and the payload is a series of
// VLQ encoded command ids each followed by its arguments. A block with an
// empty payload acknowledges every block before the sequence number it
// carries.
package protocol

import "powerfeed/errcode"

// Version is reported by the identify command.
const Version = "0.1.0"

// Protocol constants
const (
	MessageMax         = 64 // Largest block, fits the AVR's RAM budget
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10

	// Message sequence masks
	MessageSeqMask = 0x0F

	// PayloadMax is the largest payload of a single block.
	PayloadMax = MessageMax - MessageLengthMin
)

// NextSeq returns the sequence byte that follows seq.
func NextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// errTooLong rejects payloads that do not fit one block.
const errTooLong = errcode.InvalidParams
