package handlers

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize bounds the content of a single message. A DKG result for
// a 64 member group is well below it.
const MaxMessageSize = 1 << 20

var ErrMessageTooLarge = errors.New("message too large")

// Message represents a protocol message that includes both size and content.
// The size is encoded as a little-endian uint32 followed by the actual content bytes.
type Message struct {
	// Size is the length of the content in bytes
	Size uint32
	// Content contains the actual message data
	Content []byte
}

// WriteMessageWithContext writes a message to an io.Writer with context cancellation support.
// The message format is:
//   - 4 bytes: content size as little-endian uint32
//   - N bytes: content itself
func WriteMessageWithContext(ctx context.Context, w io.Writer, content []byte) error {
	if len(content) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(content))
	}

	done := make(chan error, 1)
	go func() {
		size := uint32(len(content))

		if err := binary.Write(w, binary.LittleEndian, size); err != nil {
			done <- fmt.Errorf("failed to write message size: %w", err)
			return
		}
		if _, err := w.Write(content); err != nil {
			done <- fmt.Errorf("failed to write message content: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type readResult struct {
	msg *Message
	err error
}

// ReadMessageWithContext reads a message written by WriteMessageWithContext.
// Messages announcing more than MaxMessageSize bytes are rejected before
// any content is read.
func ReadMessageWithContext(ctx context.Context, r io.Reader) (*Message, error) {
	done := make(chan readResult, 1)

	go func() {
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			done <- readResult{err: fmt.Errorf("failed to read message size: %w", err)}
			return
		}
		if size > MaxMessageSize {
			done <- readResult{err: fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, size)}
			return
		}

		content := make([]byte, size)
		if _, err := io.ReadFull(r, content); err != nil {
			done <- readResult{err: fmt.Errorf("failed to read message content: %w", err)}
			return
		}
		done <- readResult{msg: &Message{Size: size, Content: content}}
	}()

	select {
	case result := <-done:
		return result.msg, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
