package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/hazyhaar/docintel/detect"
	"github.com/hazyhaar/docintel/extract"
	"github.com/hazyhaar/docintel/fault"
	"github.com/hazyhaar/docintel/pool"
)

// Email extracts RFC 5322 messages: the decoded body text plus the envelope
// as email metadata. HTML-only bodies are converted to Markdown.
type Email struct{}

func (Email) Supports(f detect.Format) bool { return f == detect.FormatEML }

func (Email) Extract(_ context.Context, req extract.Request) (*extract.Result, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(req.Data))
	if err != nil {
		return nil, fault.Parsing("parse email message", err)
	}

	dec := &mime.WordDecoder{}
	decodeHeader := func(v string) string {
		if out, err := dec.DecodeHeader(v); err == nil {
			return out
		}
		return v
	}

	meta := &extract.EmailMeta{
		ToEmails:    addressList(msg.Header, "To"),
		CcEmails:    addressList(msg.Header, "Cc"),
		BccEmails:   addressList(msg.Header, "Bcc"),
		Attachments: []string{},
	}
	if from, err := mail.ParseAddress(msg.Header.Get("From")); err == nil {
		meta.FromEmail = &from.Address
		if from.Name != "" {
			name := decodeHeader(from.Name)
			meta.FromName = &name
		}
	}
	if id := strings.Trim(msg.Header.Get("Message-Id"), "<>"); id != "" {
		meta.MessageID = &id
	}

	body, attachments, err := emailBody(msg)
	if err != nil {
		return nil, err
	}
	meta.Attachments = append(meta.Attachments, attachments...)

	res := &extract.Result{
		Content:  strings.TrimSpace(body),
		MimeType: "message/rfc822",
		Metadata: extract.Metadata{
			Format: extract.FormatMeta{Kind: extract.MetaEmail, Email: meta},
		},
	}
	if subject := decodeHeader(msg.Header.Get("Subject")); subject != "" {
		res.Metadata.Subject = &subject
	}
	if date, err := msg.Header.Date(); err == nil {
		d := date.Format("2006-01-02T15:04:05Z07:00")
		res.Metadata.Date = &d
	}
	return res, nil
}

func addressList(h mail.Header, key string) []string {
	out := []string{}
	addrs, err := h.AddressList(key)
	if err != nil {
		return out
	}
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}

// emailBody returns the best text body of the message plus attachment
// filenames. text/plain parts win over text/html; HTML falls back to a
// Markdown conversion.
func emailBody(msg *mail.Message) (string, []string, error) {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		data, err := readAll(decodeTransfer(msg.Body, msg.Header.Get("Content-Transfer-Encoding")))
		if err != nil {
			return "", nil, fault.IO("read email body", err)
		}
		return partText(mediaType, data), nil, nil
	}

	boundary := params["boundary"]
	if boundary == "" {
		return "", nil, fault.Parsing("multipart message without boundary", nil)
	}

	var plain, html strings.Builder
	var attachments []string
	mr := multipart.NewReader(msg.Body, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, fault.Parsing("read multipart body", err)
		}

		if name := part.FileName(); name != "" {
			attachments = append(attachments, name)
			part.Close()
			continue
		}

		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		data, err := readAll(decodeTransfer(part, part.Header.Get("Content-Transfer-Encoding")))
		part.Close()
		if err != nil {
			continue
		}
		switch partType {
		case "text/plain", "":
			plain.Write(data)
			plain.WriteByte('\n')
		case "text/html":
			html.Write(data)
		}
	}

	if plain.Len() > 0 {
		return plain.String(), attachments, nil
	}
	return partText("text/html", []byte(html.String())), attachments, nil
}

// readAll drains r through a pooled scratch buffer and returns a copy the
// caller may retain.
func readAll(r io.Reader) ([]byte, error) {
	_, byteScratch := pool.Buffers()
	guard := byteScratch.Acquire()
	defer guard.Release()

	buf := guard.Value()
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

// decodeTransfer wraps r with the decoder matching the part's
// Content-Transfer-Encoding.
func decodeTransfer(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	}
	return r
}

// partText normalizes one body part into plain text.
func partText(mediaType string, data []byte) string {
	if mediaType == "text/html" {
		if md, err := htmlToMarkdown(data); err == nil {
			return md
		}
	}
	return string(data)
}
