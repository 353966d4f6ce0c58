package terminal

import (
	"bufio"
	"io"
	"strings"
)

// maxLineBytes bounds a single line of input.
const maxLineBytes = 64 * 1024

// Reader reads user input line by line.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	return &Reader{scanner: scanner}
}

// ReadLine reads a line of input from the user, trimmed of whitespace. It
// returns io.EOF when input is exhausted.
func (r *Reader) ReadLine() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(r.scanner.Text()), nil
}
