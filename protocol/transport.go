package protocol

import "io"

// CommandHandler handles one decoded command. It must consume its arguments
// from args.
type CommandHandler func(cmdID uint16, args *[]byte) error

// Transport is the device side of the link. It accepts command blocks from
// the host, acknowledges them and sends responses.
type Transport struct {
	dec     Decoder
	out     io.Writer
	handler CommandHandler

	// Expected sequence of the next host block. Acks and responses carry it.
	nextSequence uint8

	resetCallback func() // Called when host reset is detected
	errorCallback func(cmdID uint16, err error)

	block [MessageMax]byte
}

// NewTransport creates a transport writing blocks to out.
func NewTransport(out io.Writer, handler CommandHandler) *Transport {
	t := &Transport{
		out:          out,
		handler:      handler,
		nextSequence: MessageDest,
	}
	t.dec.OnResync = t.encodeAckNak
	return t
}

// Receive processes incoming bytes.
func (t *Transport) Receive(data []byte) {
	t.dec.Feed(data, t.handleFrame)
}

func (t *Transport) handleFrame(f Frame) {
	// A host that restarts begins again at MessageDest
	if f.Sequence == MessageDest && t.nextSequence != MessageDest {
		t.nextSequence = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}

	if f.Sequence == t.nextSequence {
		t.nextSequence = NextSeq(f.Sequence)
		// Ack before running commands so it precedes any response.
		t.encodeAckNak()
		t.parseFrame(f.Payload)
		return
	}

	// Out of order: the ack doubles as a nak naming the expected sequence
	t.encodeAckNak()
}

// parseFrame dispatches every command in a payload.
func (t *Transport) parseFrame(payload []byte) {
	for len(payload) > 0 {
		cmdID, err := ReadVLQUint(&payload)
		if err != nil {
			t.report(0xFFFF, err)
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(uint16(cmdID), &payload); err != nil {
			// Remaining arguments cannot be located after a failed command
			t.report(uint16(cmdID), err)
			return
		}
	}
}

func (t *Transport) report(cmdID uint16, err error) {
	if t.errorCallback != nil {
		t.errorCallback(cmdID, err)
	}
}

// encodeAckNak sends an empty block carrying the expected sequence.
func (t *Transport) encodeAckNak() {
	block := AppendBlock(t.block[:0], t.nextSequence, nil)
	t.out.Write(block)
}

// SendCommand sends one command with already encoded arguments.
func (t *Transport) SendCommand(cmdID uint16, args []byte) error {
	var payload [PayloadMax]byte
	p := AppendVLQUint(payload[:0], uint32(cmdID))
	if len(p)+len(args) > PayloadMax {
		return errTooLong
	}
	p = append(p, args...)

	block := AppendBlock(t.block[:0], t.nextSequence, p)
	_, err := t.out.Write(block)
	return err
}

// SetResetCallback sets a callback to be called when host reset is detected
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetErrorCallback sets a callback for commands that fail to decode or run.
func (t *Transport) SetErrorCallback(callback func(cmdID uint16, err error)) {
	t.errorCallback = callback
}

// Corrupt returns the number of rejected blocks.
func (t *Transport) Corrupt() uint32 {
	return t.dec.Corrupt
}

// Reset forgets the host's sequence and any partial input.
func (t *Transport) Reset() {
	t.dec.Reset()
	t.nextSequence = MessageDest
}
