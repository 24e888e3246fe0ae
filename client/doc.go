// Package client provides the participants of a courier broker.
//
// InMemory is a client living in the same process as the broker, with its
// handlers called directly. Serializing connects a remote peer over any
// Transport able to move byte frames, encoding envelopes on the way out and
// results on the way back.
package client
