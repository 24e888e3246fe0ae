package events

import (
	"errors"
	"fmt"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// ExtRecipient is the CloudEvents extension attribute carrying the recipient.
	ExtRecipient = "extrecipient"
	// ExtSessionID is the CloudEvents extension attribute carrying the session id.
	ExtSessionID = "extsessionid"
)

// ErrMalformedEnvelope is returned when a wire envelope can not be decoded.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// MarshalJSON encodes the envelope as a CloudEvents structured event.
func (e Envelope) MarshalJSON() ([]byte, error) {
	specVersion := e.SpecVersion
	if specVersion == "" {
		specVersion = SpecVersion
	}
	contentType := e.DataContentType
	if contentType == "" {
		contentType = DataContentType
	}

	result := []byte(`{}`)
	var err error
	for _, field := range []struct {
		path  string
		value string
	}{
		{"specversion", specVersion},
		{"type", e.Type},
		{"source", e.Source},
		{"id", e.ID},
		{"time", e.Time.String()},
		{"datacontenttype", contentType},
	} {
		if result, err = sjson.SetBytes(result, field.path, field.value); err != nil {
			return nil, err
		}
	}

	if e.Data != nil {
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("encode data: %w", err)
		}
		if result, err = sjson.SetRawBytes(result, "data", raw); err != nil {
			return nil, err
		}
	}

	if result, err = sjson.SetBytes(result, ExtRecipient, e.Recipient); err != nil {
		return nil, err
	}
	return sjson.SetBytes(result, ExtSessionID, e.SessionID)
}

// UnmarshalJSON decodes a CloudEvents structured event produced by MarshalJSON.
// The payload is decoded into dynamic JSON values; use a Definition to recover its type.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%w: invalid json: %s", ErrMalformedEnvelope, data)
	}

	fields := gjson.GetManyBytes(data,
		"specversion", "type", "source", "id", "time", "datacontenttype", "data", ExtRecipient, ExtSessionID,
	)
	for i, name := range []string{"specversion", "type", "source", "id"} {
		if !fields[i].Exists() || fields[i].String() == "" {
			return fmt.Errorf("%w: missing required field '%s'", ErrMalformedEnvelope, name)
		}
	}
	if v := fields[0].String(); v != SpecVersion {
		return fmt.Errorf("%w: unsupported specversion '%s'", ErrMalformedEnvelope, v)
	}

	var env Envelope
	env.SpecVersion = fields[0].String()
	env.Type = fields[1].String()
	env.Source = fields[2].String()
	env.ID = fields[3].String()

	if ts := fields[4]; ts.Exists() && ts.String() != "" {
		parsed, err := strfmt.ParseDateTime(ts.String())
		if err != nil {
			return fmt.Errorf("%w: invalid time: %w", ErrMalformedEnvelope, err)
		}
		env.Time = parsed
	}

	env.DataContentType = DataContentType
	if ct := fields[5].String(); ct != "" {
		env.DataContentType = ct
	}

	if raw := fields[6]; raw.Exists() && raw.Type != gjson.Null {
		var payload any
		if err := json.Unmarshal([]byte(raw.Raw), &payload); err != nil {
			return fmt.Errorf("%w: invalid data: %w", ErrMalformedEnvelope, err)
		}
		env.Data = payload
	}

	env.Recipient = fields[7].String()
	env.SessionID = fields[8].String()

	*e = env
	return nil
}

// MarshalResult encodes a delivery result, tagging it with the id of the envelope it answers.
func MarshalResult(ref string, result DeliveryResult) ([]byte, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(b, "ref", ref)
}

// UnmarshalResult decodes a result produced by MarshalResult and returns the envelope id it refers to.
func UnmarshalResult(data []byte) (string, DeliveryResult, error) {
	var result DeliveryResult
	if !gjson.ValidBytes(data) {
		return "", result, fmt.Errorf("invalid json: %s", data)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", result, err
	}
	if result.Status != ACK && result.Status != NACK {
		return "", result, fmt.Errorf("invalid status '%s'", result.Status)
	}
	return gjson.GetBytes(data, "ref").String(), result, nil
}

// IsResult reports whether a raw frame carries a delivery result rather than an envelope.
func IsResult(data []byte) bool {
	return gjson.GetBytes(data, "ref").Exists() && !gjson.GetBytes(data, "specversion").Exists()
}
