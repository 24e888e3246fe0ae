package events

import (
	"reflect"
	"time"

	"github.com/casualjim/courier/pkg/uuidx"
	"github.com/go-openapi/strfmt"
	"github.com/mitchellh/copystructure"
)

const (
	// SpecVersion is the CloudEvents version every envelope declares.
	SpecVersion = "1.0"
	// DataContentType marks payloads as JSON encoded on the wire.
	DataContentType = "application/json"
	// Wildcard is the recipient of broadcast envelopes.
	Wildcard = "*"
)

// Envelope is a single event occurrence travelling through the router.
type Envelope struct {
	SpecVersion     string
	Type            string
	Source          string
	ID              string
	Time            strfmt.DateTime
	DataContentType string
	Data            any
	Recipient       string
	SessionID       string
}

// New builds an envelope for one send, stamping it with a fresh id and the current time.
func New(eventType, source, recipient, sessionID string, data any) Envelope {
	return Envelope{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          source,
		ID:              uuidx.NewString(),
		Time:            strfmt.DateTime(time.Now().UTC()),
		DataContentType: DataContentType,
		Data:            data,
		Recipient:       recipient,
		SessionID:       sessionID,
	}
}

// IsBroadcast reports whether the envelope is addressed to every subscriber.
func (e Envelope) IsBroadcast() bool {
	return e.Recipient == Wildcard
}

// Freeze returns a copy of the envelope whose payload is deep-copied, so the
// receiver can not change what other hooks or handlers see.
// Payloads that can not be copied faithfully are shared as is. That covers
// values copystructure rejects and values carrying unexported struct fields,
// which a copy would silently zero.
func Freeze(e Envelope) Envelope {
	if e.Data == nil {
		return e
	}
	cp, err := copystructure.Copy(e.Data)
	if err != nil || !reflect.DeepEqual(cp, e.Data) {
		return e
	}
	e.Data = cp
	return e
}
