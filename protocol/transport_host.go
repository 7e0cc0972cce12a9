//go:build !tinygo

package protocol

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"powerfeed/errcode"
)

// DefaultTimeout bounds how long SendCommand waits for an acknowledgement.
const DefaultTimeout = 2 * time.Second

// ResponseHandler is called from the read loop for every response.
type ResponseHandler func(msg *Message)

// Message is a response received from the device.
type Message struct {
	Sequence uint8
	CmdID    uint16
	Args     []byte // encoded arguments, owned by the receiver
}

// HostTransport is the host side of the link: it sends command blocks,
// waits for their acknowledgement and collects responses.
type HostTransport struct {
	port io.ReadWriteCloser

	writeMutex sync.Mutex
	currentSeq uint8

	dec Decoder // read loop only

	ackChan      chan uint8
	responseChan chan *Message

	handlerMutex    sync.Mutex
	responseHandler ResponseHandler

	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
}

// NewHostTransport starts a transport on an open port.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		currentSeq:   MessageDest,
		ackChan:      make(chan uint8, 1),
		responseChan: make(chan *Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends a command and waits for the device to acknowledge it.
func (t *HostTransport) SendCommand(cmdID uint16, args []byte) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultTimeout)
}

// SendCommandWithTimeout sends a command with a custom acknowledgement timeout.
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args []byte, timeout time.Duration) error {
	payload := AppendVLQUint(nil, uint32(cmdID))
	payload = append(payload, args...)
	if len(payload) > PayloadMax {
		return errors.Wrapf(errcode.InvalidParams, "command %d payload is %d bytes (max %d)", cmdID, len(payload), PayloadMax)
	}

	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	// Stale acks from a resync must not satisfy this command
	select {
	case <-t.ackChan:
	default:
	}

	seq := t.currentSeq
	block := AppendBlock(nil, seq, payload)
	n, err := t.port.Write(block)
	if err != nil {
		return errors.Wrap(err, "write block")
	}
	if n != len(block) {
		return errors.Errorf("incomplete write: %d/%d bytes", n, len(block))
	}

	return t.waitForAck(seq, timeout)
}

// waitForAck waits for the device to report it expects the block after seq.
func (t *HostTransport) waitForAck(seq uint8, timeout time.Duration) error {
	want := NextSeq(seq)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-t.ackChan:
			if ack == want {
				t.currentSeq = want
				return nil
			}
			if ack != seq {
				// The device expects a different block; follow it.
				t.currentSeq = ack
				return errors.Errorf("sequence mismatch: sent 0x%02x, device expects 0x%02x", seq, ack)
			}
			// Repeated ack of the previous block, keep waiting
		case <-timer.C:
			return errors.Wrapf(errcode.Timeout, "no ack after %v", timeout)
		case <-t.stopChan:
			return errors.New("transport stopped")
		}
	}
}

// ReceiveResponse waits for the next response.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-timer.C:
		return nil, errors.Wrapf(errcode.Timeout, "no response after %v", timeout)
	case <-t.stopChan:
		return nil, errors.New("transport stopped")
	}
}

// SetResponseHandler sets a callback for handling responses asynchronously.
// Responses are still queued for ReceiveResponse.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMutex.Lock()
	t.responseHandler = handler
	t.handlerMutex.Unlock()
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.dec.Feed(buffer[:n], t.dispatch)
		}
		if err != nil {
			if err == io.EOF || t.stopped() {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (t *HostTransport) stopped() bool {
	select {
	case <-t.stopChan:
		return true
	default:
		return false
	}
}

// dispatch routes a block to the ack or response channel.
func (t *HostTransport) dispatch(f Frame) {
	if len(f.Payload) == 0 {
		select {
		case t.ackChan <- f.Sequence:
		default:
			// Keep only the newest ack
			select {
			case <-t.ackChan:
			default:
			}
			t.ackChan <- f.Sequence
		}
		return
	}

	payload := f.Payload
	cmdID, err := ReadVLQUint(&payload)
	if err != nil {
		return
	}
	msg := &Message{
		Sequence: f.Sequence,
		CmdID:    uint16(cmdID),
		Args:     append([]byte(nil), payload...),
	}

	t.handlerMutex.Lock()
	handler := t.responseHandler
	t.handlerMutex.Unlock()
	if handler != nil {
		handler(msg)
	}

	select {
	case t.responseChan <- msg:
	default:
		// Full: drop the oldest response
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Close stops the read loop and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopChan)
		err = t.port.Close()
		<-t.doneChan
	})
	return err
}

// Sequence returns the sequence byte of the next command.
func (t *HostTransport) Sequence() uint8 {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()
	return t.currentSeq
}
