// Package events defines the message model shared by every part of the router:
// the CloudEvents-shaped Envelope, the DeliveryResult returned by each send,
// the Handler contract subscribers implement and typed event definitions.
//
// Design decisions:
//   - Value semantics: an Envelope is passed by value and Freeze deep-copies its
//     payload, so no hook or handler can mutate what another one observes
//   - CloudEvents on the wire: the JSON form is a strict superset of a CloudEvents
//     1.0 structured event; routing data travels in the extrecipient and
//     extsessionid extension attributes
//   - Typed payloads: Definition[T] binds an event type name to its payload type,
//     and recovers T from opaque data (including data that went through JSON)
//
// Envelope fields:
//   - SpecVersion, DataContentType: fixed literals
//   - Type: event type from the application's vocabulary ("user.created.v1")
//   - Source: the sending client id
//   - ID: UUIDv7, for traceability only
//   - Time: creation timestamp
//   - Data: the application payload
//   - Recipient: a client id, or Wildcard for broadcasts
//   - SessionID: the session (tab) that originated the send
//
// Example usage:
//
//	var UserCreated = events.Define[UserCreatedPayload]("user.created.v1")
//
//	handler := UserCreated.Handler(func(ctx context.Context, ev events.Event[UserCreatedPayload]) (any, error) {
//	    return lookup(ev.Payload.UserID), nil
//	})
package events
