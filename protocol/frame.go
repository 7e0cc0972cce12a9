package protocol

import "bytes"

// Frame is one decoded message block. Payload aliases the decoder's buffer
// and is only valid until the callback returns.
type Frame struct {
	Sequence uint8
	Payload  []byte
}

// AppendBlock appends a complete message block carrying payload. The
// payload must not exceed PayloadMax.
func AppendBlock(dst []byte, seq uint8, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, uint8(len(payload)+MessageLengthMin), seq)
	dst = append(dst, payload...)
	return appendTrailer(dst, start)
}

type scanResult uint8

const (
	scanNeedMore scanResult = iota
	scanFrame
	scanBad
)

// scanBlock checks for one complete, valid block at the start of data.
func scanBlock(data []byte) (Frame, int, scanResult) {
	if len(data) < MessageLengthMin {
		return Frame{}, 0, scanNeedMore
	}

	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageMax {
		return Frame{}, 0, scanBad
	}

	seq := data[MessagePositionSeq]
	if seq&^MessageSeqMask != MessageDest {
		return Frame{}, 0, scanBad
	}

	if len(data) < msgLen {
		return Frame{}, 0, scanNeedMore
	}

	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return Frame{}, 0, scanBad
	}

	frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
		uint16(data[msgLen-MessageTrailerCRC+1])
	if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
		return Frame{}, 0, scanBad
	}

	return Frame{
		Sequence: seq,
		Payload:  data[MessageHeaderSize : msgLen-MessageTrailerSize],
	}, msgLen, scanFrame
}

// Decoder reassembles blocks from a byte stream. After a corrupt block it
// discards input up to the next sync byte.
type Decoder struct {
	buf  [2 * MessageMax]byte
	n    int
	lost bool

	// OnResync is called when the stream is back in sync after corruption.
	OnResync func()

	// Corrupt counts rejected blocks.
	Corrupt uint32
}

// Feed consumes data and calls fn for every complete block.
func (d *Decoder) Feed(data []byte, fn func(Frame)) {
	for len(data) > 0 {
		c := copy(d.buf[d.n:], data)
		d.n += c
		data = data[c:]
		d.process(fn)
	}
}

func (d *Decoder) process(fn func(Frame)) {
	buf := d.buf[:d.n]
	for len(buf) > 0 {
		if d.lost {
			i := bytes.IndexByte(buf, MessageValueSync)
			if i < 0 {
				buf = buf[:0]
				break
			}
			buf = buf[i+1:]
			d.lost = false
			if d.OnResync != nil {
				d.OnResync()
			}
			continue
		}

		// Skip leading sync bytes
		if buf[0] == MessageValueSync {
			buf = buf[1:]
			continue
		}

		f, n, res := scanBlock(buf)
		if res == scanNeedMore {
			break
		}
		if res == scanBad {
			d.lost = true
			d.Corrupt++
			continue
		}
		fn(f)
		buf = buf[n:]
	}
	d.n = copy(d.buf[:], buf)
}

// Reset discards buffered input.
func (d *Decoder) Reset() {
	d.n = 0
	d.lost = false
}
