package console

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"
)

// Conn is a line-oriented terminal over an input stream and an output stream.
// Writes are serialized; reads must come from a single goroutine.
type Conn struct {
	reader *bufio.Reader
	out    io.Writer
	color  bool
	mu     sync.Mutex
}

// NewConn wraps in and out. When color is false ANSI sequences are stripped
// from everything written.
//
// Precondition: in and out must be non-nil.
func NewConn(in io.Reader, out io.Writer, color bool) *Conn {
	return &Conn{
		reader: bufio.NewReaderSize(in, 4096),
		out:    out,
		color:  color,
	}
}

// ReadLine reads a single line of input without its terminator. Control
// characters other than tab are dropped.
//
// Postcondition: Returns the next line, or an error (including io.EOF). A
// final unterminated line is returned together with io.EOF.
func (c *Conn) ReadLine() (string, error) {
	var line bytes.Buffer
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return line.String(), err
		}
		if b == '\n' {
			break
		}
		if b == '\r' {
			next, err := c.reader.Peek(1)
			if err == nil && len(next) > 0 && next[0] == '\n' {
				_, _ = c.reader.ReadByte()
			}
			break
		}
		if b < 32 && b != '\t' {
			continue
		}
		line.WriteByte(b)
	}
	return line.String(), nil
}

// WriteLine writes text followed by a newline.
//
// Precondition: text should not contain trailing newline characters.
func (c *Conn) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "%s\n", c.render(text))
	return err
}

// WritePrompt writes prompt without a trailing newline.
func (c *Conn) WritePrompt(prompt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprint(c.out, c.render(prompt))
	return err
}

func (c *Conn) render(text string) string {
	if c.color {
		return text
	}
	return StripANSI(text)
}
