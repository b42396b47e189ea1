// Package transport provides the stdio framing for MCP communication. The
// protocol carries one self-delimited JSON message per line: requests arrive
// on standard input, responses leave on standard output.
package transport

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// maxMessageSize bounds a single framed message. Result sets travel in the
// other direction, so inbound messages stay small; the bound only guards
// against unframed garbage on stdin.
const maxMessageSize = 16 * 1024 * 1024

// Framer reads and writes discrete messages over a byte stream pair. Reads
// are blocking and strictly sequential: the caller never asks for a second
// message before the first has been dispatched and answered.
type Framer struct {
	reader    io.Reader
	scanner   *bufio.Scanner
	writer    *bufio.Writer
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// New creates a Framer over the given streams. Pass nil to use the process
// standard input and output.
func New(r io.Reader, w io.Writer) *Framer {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)

	return &Framer{
		reader:  r,
		scanner: scanner,
		writer:  bufio.NewWriter(w),
	}
}

// Receive blocks until the next message arrives and returns a copy of its
// bytes. Blank lines are skipped. io.EOF signals the remote side closed the
// input channel; the session then terminates cleanly.
func (f *Framer) Receive() ([]byte, error) {
	for f.scanner.Scan() {
		line := f.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		// Copy the line so the next Scan does not overwrite it.
		data := make([]byte, len(line))
		copy(data, line)
		return data, nil
	}

	if err := f.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return nil, io.EOF
}

// Send writes one message followed by a newline and flushes. A write failure
// means the output channel is gone and is fatal to the session: the sole
// consumer is the client that just disappeared, so there is nothing to retry.
func (f *Framer) Send(data []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if _, err := f.writer.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := f.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Close closes the underlying reader when it supports closing, unblocking a
// pending Receive. Used by the shutdown watcher on context cancellation.
func (f *Framer) Close() error {
	var err error
	f.closeOnce.Do(func() {
		if closer, ok := f.reader.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}
