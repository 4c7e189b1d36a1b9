package store

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("email not found")

type Address struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type EnvelopeAddress struct {
	Address string `json:"address"`
	Args    bool   `json:"args"`
}

type Envelope struct {
	From          EnvelopeAddress   `json:"from"`
	To            []EnvelopeAddress `json:"to"`
	Host          string            `json:"host"`
	RemoteAddress string            `json:"remoteAddress"`
}

type Attachment struct {
	Filename          string `json:"filename"`
	GeneratedFileName string `json:"generatedFileName"`
	ContentType       string `json:"contentType"`
	ContentID         string `json:"contentId,omitempty"`
	Size              int64  `json:"size"`
}

// AttachmentData pairs attachment metadata with its bytes for insertion.
type AttachmentData struct {
	Attachment
	Data []byte
}

// Email is the captured message as exposed over the API. Its JSON form is what
// the listing filter resolves dot paths against.
type Email struct {
	ID          string              `json:"id"`
	MessageID   string              `json:"messageId"`
	Subject     string              `json:"subject"`
	From        []Address           `json:"from"`
	To          []Address           `json:"to"`
	Cc          []Address           `json:"cc"`
	Bcc         []Address           `json:"bcc"`
	ReplyTo     []Address           `json:"replyTo"`
	Text        string              `json:"text"`
	HTML        string              `json:"html"`
	Date        time.Time           `json:"date"`
	Time        time.Time           `json:"time"`
	Read        bool                `json:"read"`
	Headers     map[string][]string `json:"headers"`
	Envelope    Envelope            `json:"envelope"`
	Attachments []Attachment        `json:"attachments"`
	Size        int64               `json:"size"`
	SizeHuman   string              `json:"sizeHuman"`
	Priority    string              `json:"priority"`
}

// Record returns the generic JSON view of the email.
func (e Email) Record() (map[string]any, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return record, nil
}
