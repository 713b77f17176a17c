package skill

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const maxSSELineSize = 1 << 20

// SSEFrame is one dispatched server-sent event
type SSEFrame struct {
	Event string
	ID    string
	Data  []byte
}

// SSEReader splits a text/event-stream body into frames
type SSEReader struct {
	scanner *bufio.Scanner
}

// NewSSEReader creates a reader over r
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &SSEReader{scanner: scanner}
}

// Next returns the next frame that carries data. It returns io.EOF once the
// body is exhausted; a trailing frame without a blank line is still delivered.
func (r *SSEReader) Next() (SSEFrame, error) {
	var (
		frame   SSEFrame
		data    bytes.Buffer
		hasData bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if hasData {
				frame.Data = data.Bytes()
				return frame, nil
			}
			frame = SSEFrame{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			frame.Event = value
		case "id":
			frame.ID = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		}
	}

	if err := r.scanner.Err(); err != nil {
		return SSEFrame{}, err
	}
	if hasData {
		frame.Data = data.Bytes()
		return frame, nil
	}
	return SSEFrame{}, io.EOF
}
