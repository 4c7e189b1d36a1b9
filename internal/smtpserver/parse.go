package smtpserver

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"

	"github.io/razzkumar/maildev/internal/store"
)

// ParseMessage turns raw message bytes into an Email record plus attachment
// payloads. A message that cannot be fully parsed still yields a record built
// from the envelope, together with the parse error.
func ParseMessage(id string, envelope store.Envelope, raw []byte, received time.Time) (store.Email, []store.AttachmentData, error) {
	email := store.Email{
		ID:          id,
		From:        []store.Address{},
		To:          []store.Address{},
		Cc:          []store.Address{},
		Bcc:         []store.Address{},
		ReplyTo:     []store.Address{},
		Date:        received,
		Time:        received,
		Headers:     map[string][]string{},
		Envelope:    envelope,
		Attachments: []store.Attachment{},
		Size:        int64(len(raw)),
		SizeHuman:   humanize.Bytes(uint64(len(raw))),
		Priority:    "normal",
	}
	if email.Envelope.To == nil {
		email.Envelope.To = []store.EnvelopeAddress{}
	}
	attachments := []store.AttachmentData{}

	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		fillFromEnvelope(&email)
		return email, attachments, fmt.Errorf("read message: %w", err)
	}

	fields := reader.Header.Fields()
	for fields.Next() {
		key := strings.ToLower(fields.Key())
		email.Headers[key] = append(email.Headers[key], fields.Value())
	}

	if subject, err := reader.Header.Subject(); err == nil {
		email.Subject = subject
	}
	if messageID, err := reader.Header.MessageID(); err == nil {
		email.MessageID = messageID
	}
	if date, err := reader.Header.Date(); err == nil && !date.IsZero() {
		email.Date = date
	}
	email.From = headerAddresses(reader.Header, "From")
	email.To = headerAddresses(reader.Header, "To")
	email.Cc = headerAddresses(reader.Header, "Cc")
	email.Bcc = headerAddresses(reader.Header, "Bcc")
	email.ReplyTo = headerAddresses(reader.Header, "Reply-To")
	email.Priority = priority(reader.Header)
	fillFromEnvelope(&email)

	names := map[string]int{}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return email, attachments, fmt.Errorf("read part: %w", err)
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, params, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(mediaType, "text/plain") || mediaType == "":
				email.Text = joinBody(email.Text, string(body))
			case strings.HasPrefix(mediaType, "text/html"):
				email.HTML = joinBody(email.HTML, string(body))
			default:
				// inline parts such as images referenced by cid
				attachment := newAttachment(params["name"], mediaType, header.Get("Content-Id"), body, names)
				email.Attachments = append(email.Attachments, attachment.Attachment)
				attachments = append(attachments, attachment)
			}
		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			contentType, _, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			attachment := newAttachment(filename, contentType, header.Get("Content-Id"), body, names)
			email.Attachments = append(email.Attachments, attachment.Attachment)
			attachments = append(attachments, attachment)
		}
	}

	if email.Text == "" && email.HTML != "" {
		email.Text = html2text.HTML2Text(email.HTML)
	}
	return email, attachments, nil
}

func headerAddresses(header mail.Header, key string) []store.Address {
	out := []store.Address{}
	list, err := header.AddressList(key)
	if err != nil {
		return out
	}
	for _, addr := range list {
		out = append(out, store.Address{Address: addr.Address, Name: addr.Name})
	}
	return out
}

// fillFromEnvelope uses envelope addresses when the headers carry none.
func fillFromEnvelope(email *store.Email) {
	if len(email.From) == 0 && email.Envelope.From.Address != "" {
		email.From = []store.Address{{Address: email.Envelope.From.Address}}
	}
	if len(email.To) == 0 {
		for _, rcpt := range email.Envelope.To {
			email.To = append(email.To, store.Address{Address: rcpt.Address})
		}
	}
}

func priority(header mail.Header) string {
	switch strings.TrimSpace(header.Get("X-Priority")) {
	case "1", "2":
		return "high"
	case "4", "5":
		return "low"
	}
	switch strings.ToLower(strings.TrimSpace(header.Get("Importance"))) {
	case "high":
		return "high"
	case "low":
		return "low"
	}
	return "normal"
}

func joinBody(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "\n" + next
}

// newAttachment builds attachment metadata with a file name that is unique
// within the email, since downloads are addressed by it.
func newAttachment(filename, contentType, contentID string, body []byte, seen map[string]int) store.AttachmentData {
	filename = strings.TrimSpace(filename)
	contentID = strings.Trim(strings.TrimSpace(contentID), "<>")
	generated := filename
	if generated == "" {
		generated = contentID
	}
	if generated == "" {
		generated = "attachment"
	}
	if n := seen[generated]; n > 0 {
		seen[generated] = n + 1
		generated = fmt.Sprintf("%d-%s", n, generated)
	} else {
		seen[generated] = 1
	}
	if filename == "" {
		filename = generated
	}
	return store.AttachmentData{
		Attachment: store.Attachment{
			Filename:          filename,
			GeneratedFileName: generated,
			ContentType:       contentType,
			ContentID:         contentID,
			Size:              int64(len(body)),
		},
		Data: body,
	}
}
