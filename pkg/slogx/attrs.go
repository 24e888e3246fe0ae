package slogx

import (
	"log/slog"
)

const (
	// KeyLoggerName is the key for the logger name attribute.
	KeyLoggerName = "logger"
	// KeyEventType is the key for the event type attribute.
	KeyEventType = "event_type"
	// KeyClientID is the key for the client id attribute.
	KeyClientID = "client_id"
	// KeySessionID is the key for the session id attribute.
	KeySessionID = "session_id"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// LoggerName creates a slog.Attr with the provided logger name.
// The attribute key is defined by KeyLoggerName.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// EventType tags a log record with the event type being routed.
func EventType(eventType string) slog.Attr {
	return slog.String(KeyEventType, eventType)
}

// ClientID tags a log record with a client identifier.
func ClientID(id string) slog.Attr {
	return slog.String(KeyClientID, id)
}

// SessionID tags a log record with a session identifier.
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// Panic converts a recovered panic value into an attribute.
func Panic(recovered any) slog.Attr {
	return slog.Any("panic", recovered)
}

// Named returns logger (or the default logger when nil) tagged with name.
func Named(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(LoggerName(name))
}
