// Package mail parses RFC 5322 messages and normalizes the fields the
// classifier looks at. Normalization is deterministic: two messages with
// the same normalized field tuple always fingerprint identically.
package mail

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// Message is the parsed, pre-normalization view of an email.
type Message struct {
	Subject  string
	Sender   string
	TextBody string
	HTMLBody string
}

// Parse reads one RFC 5322 message, walking MIME multipart bodies to find
// the text/plain and text/html alternatives.
func Parse(r io.Reader) (*Message, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	out := &Message{
		Subject: decodeHeader(msg.Header.Get("Subject")),
		Sender:  senderAddress(msg.Header.Get("From")),
	}

	contentType := msg.Header.Get("Content-Type")
	encoding := msg.Header.Get("Content-Transfer-Encoding")
	if err := readBody(out, msg.Body, contentType, encoding); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeHeader decodes RFC 2047 encoded-words, falling back to the raw
// value on malformed input.
func decodeHeader(v string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// senderAddress extracts the bare address from a From header. Display
// names are spoofable decoration and are excluded from classification.
func senderAddress(from string) string {
	addr, err := mail.ParseAddress(decodeHeader(from))
	if err != nil {
		return strings.TrimSpace(from)
	}
	return addr.Address
}

// readBody fills in TextBody/HTMLBody from a (possibly multipart) body.
func readBody(out *Message, body io.Reader, contentType, encoding string) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// No or malformed Content-Type: treat as plain text.
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("multipart body without boundary")
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read part: %w", err)
			}
			partType := part.Header.Get("Content-Type")
			partEnc := part.Header.Get("Content-Transfer-Encoding")
			if err := readBody(out, part, partType, partEnc); err != nil {
				return err
			}
		}
	}

	switch mediaType {
	case "text/plain", "text/html":
		data, err := io.ReadAll(decodeTransfer(body, encoding))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if mediaType == "text/html" {
			if out.HTMLBody == "" {
				out.HTMLBody = string(data)
			}
		} else if out.TextBody == "" {
			out.TextBody = string(data)
		}
	}
	// Attachments and other media types are not classified.
	return nil
}

// decodeTransfer wraps a body reader with the declared transfer decoding.
func decodeTransfer(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	default:
		return r
	}
}
