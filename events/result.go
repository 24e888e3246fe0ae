package events

import (
	"time"

	"github.com/go-openapi/strfmt"
)

// Status is the outcome of a delivery.
type Status string

const (
	// ACK means the event was delivered and handled.
	ACK Status = "ACK"
	// NACK means the event was blocked, unroutable or not handled.
	NACK Status = "NACK"
)

// DeliveryResult is returned from every send operation.
//
// Message is meant for humans; callers should branch on Status.
type DeliveryResult struct {
	Status    Status          `json:"status"`
	Message   string          `json:"message"`
	Timestamp strfmt.DateTime `json:"timestamp"`
	ClientID  string          `json:"clientId,omitempty"`
	Data      any             `json:"data,omitempty"`
}

// Ack creates a positive result.
func Ack(message string) DeliveryResult {
	return DeliveryResult{Status: ACK, Message: message, Timestamp: strfmt.DateTime(time.Now().UTC())}
}

// Nack creates a negative result.
func Nack(message string) DeliveryResult {
	return DeliveryResult{Status: NACK, Message: message, Timestamp: strfmt.DateTime(time.Now().UTC())}
}

// WithClient sets the recipient of a unicast result.
func (r DeliveryResult) WithClient(clientID string) DeliveryResult {
	r.ClientID = clientID
	return r
}

// WithData attaches the value a handler replied with.
func (r DeliveryResult) WithData(data any) DeliveryResult {
	r.Data = data
	return r
}

// OK reports whether the result is an ACK.
func (r DeliveryResult) OK() bool {
	return r.Status == ACK
}
