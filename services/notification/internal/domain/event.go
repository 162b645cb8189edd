package domain

import (
	"encoding/json"

	generalDomain "github.com/sakashimaa/groupbuy/pkg/domain"
)

// RawEnvelope is an envelope whose payload is decoded once the event type
// is known.
type RawEnvelope = generalDomain.Envelope[json.RawMessage]

type Recipient struct {
	UserID   int64  `db:"id"`
	FullName string `db:"full_name"`
	Email    string `db:"email"`
}

// Message is a rendered email ready to be sent.
type Message struct {
	To      string
	Subject string
	HTML    string
}
