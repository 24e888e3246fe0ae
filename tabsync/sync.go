package tabsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/casualjim/courier/events"
	"github.com/casualjim/courier/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// RelayFunc receives envelopes relayed from another session.
type RelayFunc func(ctx context.Context, env events.Envelope)

// Option configures a Synchronizer.
type Option = opts.Option[Synchronizer]

// WithLogger sets the logger used for relay warnings.
var WithLogger = opts.ForName[Synchronizer, *slog.Logger]("logger")

// Synchronizer relays envelopes to other sessions sharing a Channel.
type Synchronizer struct {
	channel   Channel
	sessionID string
	onRelay   RelayFunc
	logger    *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	stop      func()
}

// New starts listening on channel. Frames from sessionID itself are discarded,
// every other frame is decoded and passed to onRelay.
//
// Parameters:
//   - channel: The channel shared by every session that should see each other's events.
//   - sessionID: The id stamped on outgoing frames and used to drop our own echoes.
//   - onRelay: Called for each envelope published by another session.
//   - options: A variadic list of Option values to configure the synchronizer.
//
// Returns:
//   - *Synchronizer: The synchronizer. Call Destroy to stop listening.
//   - error: An error if channel or sessionID is missing, or listening fails.
func New(channel Channel, sessionID string, onRelay RelayFunc, options ...Option) (*Synchronizer, error) {
	if channel == nil {
		return nil, fmt.Errorf("channel is required")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	s := &Synchronizer{
		channel:   channel,
		sessionID: sessionID,
		onRelay:   onRelay,
	}
	if err := opts.Apply(s, options); err != nil {
		return nil, err
	}
	s.logger = slogx.Named(s.logger, "tabsync").With(slogx.SessionID(sessionID))

	stop, err := channel.Listen(s.receive)
	if err != nil {
		return nil, fmt.Errorf("listen on tab channel: %w", err)
	}
	s.stop = stop
	return s, nil
}

// SessionID returns the id this synchronizer tags its frames with.
func (s *Synchronizer) SessionID() string {
	return s.sessionID
}

// Sync posts env to the other sessions. Failures are logged, never returned.
// After Destroy it does nothing.
func (s *Synchronizer) Sync(ctx context.Context, env events.Envelope) {
	if s.closed.Load() {
		return
	}
	frame, err := EncodeFrame(env, s.sessionID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to encode tab sync frame", slogx.Error(err), slogx.EventType(env.Type))
		return
	}
	if err := s.channel.Post(ctx, frame); err != nil {
		s.logger.WarnContext(ctx, "failed to post tab sync frame", slogx.Error(err), slogx.EventType(env.Type))
	}
}

func (s *Synchronizer) receive(frame []byte) {
	if s.closed.Load() {
		return
	}
	env, sessionID, err := DecodeFrame(frame)
	if err != nil {
		s.logger.Warn("dropping malformed tab sync frame", slogx.Error(err))
		return
	}
	if sessionID == s.sessionID {
		return
	}
	if s.onRelay == nil {
		return
	}
	s.logger.Debug("relaying envelope from another session",
		slogx.EventType(env.Type), slog.String("origin", sessionID), slog.String("id", env.ID))
	s.onRelay(context.Background(), env)
}

// Destroy stops listening and closes the channel. It is safe to call more than once.
func (s *Synchronizer) Destroy() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.stop != nil {
			s.stop()
		}
		if err := s.channel.Close(); err != nil {
			s.logger.Warn("failed to close tab channel", slogx.Error(err))
		}
	})
}

// EncodeFrame builds the {envelope, sessionId} frame posted on the channel.
func EncodeFrame(env events.Envelope, sessionID string) ([]byte, error) {
	raw, err := env.MarshalJSON()
	if err != nil {
		return nil, err
	}
	frame, err := sjson.SetRawBytes([]byte(`{}`), "envelope", raw)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(frame, "sessionId", sessionID)
}

// DecodeFrame parses a frame produced by EncodeFrame.
func DecodeFrame(frame []byte) (events.Envelope, string, error) {
	var env events.Envelope
	if !gjson.ValidBytes(frame) {
		return env, "", fmt.Errorf("invalid json: %s", frame)
	}
	fields := gjson.GetManyBytes(frame, "envelope", "sessionId")
	if !fields[0].IsObject() {
		return env, "", fmt.Errorf("missing required field 'envelope'")
	}
	if !fields[1].Exists() {
		return env, "", fmt.Errorf("missing required field 'sessionId'")
	}
	if err := env.UnmarshalJSON([]byte(fields[0].Raw)); err != nil {
		return env, "", err
	}
	return env, fields[1].String(), nil
}
