package esl

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// Message is one framed block from the event socket: a MIME-style header
// section terminated by a blank line, plus a body of exactly Content-Length
// bytes when that header is present.
type Message struct {
	Headers map[string]string
	Body    string
}

// ContentType returns the Content-Type header of the block.
func (m Message) ContentType() string {
	return m.Headers["Content-Type"]
}

// ReplyText returns the Reply-Text header carried by command/reply blocks.
func (m Message) ReplyText() string {
	return m.Headers["Reply-Text"]
}

// Parser reads the event socket byte stream and emits framed Messages.
type Parser struct {
	r *bufio.Reader
}

// NewParser creates a Parser that reads from the given reader.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: bufio.NewReader(r)}
}

// Next reads the next framed block from the stream. It returns io.EOF when
// the stream ends cleanly between blocks.
func (p *Parser) Next() (Message, error) {
	msg := Message{Headers: make(map[string]string)}

	for {
		line, err := p.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && len(msg.Headers) == 0 && line == "" {
				return Message{}, io.EOF
			}
			return Message{}, fmt.Errorf("reading header line: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		// Blank line marks the end of the header section
		if line == "" {
			if len(msg.Headers) == 0 {
				continue
			}
			break
		}

		idx := strings.Index(line, ": ")
		if idx < 0 {
			// Tolerate stray lines between blocks
			continue
		}
		msg.Headers[line[:idx]] = line[idx+2:]
	}

	if cl := msg.Headers["Content-Length"]; cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil {
			return Message{}, fmt.Errorf("bad Content-Length %q", cl)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(p.r, body); err != nil {
			return Message{}, fmt.Errorf("reading %d-byte body: %w", n, err)
		}
		msg.Body = string(body)
	}

	return msg, nil
}

// DecodeEvent parses a text/event-plain body into an Event. The switch
// percent-encodes header values; values that fail to decode are kept raw.
func DecodeEvent(body string) Event {
	var headers []header

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		idx := strings.Index(line, ": ")
		if idx < 0 {
			continue
		}
		key := line[:idx]
		value := line[idx+2:]
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		headers = append(headers, header{Key: key, Value: value})
	}

	return Event{headers: headers}
}
