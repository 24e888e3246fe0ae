package natsx

import (
	"errors"
	"os"

	"github.com/nats-io/nats.go"
)

// EnvURL is the environment variable holding the NATS server URL.
const EnvURL = "NATS_URL"

// ErrNotConfigured is returned by NewClient when NATS_URL is unset.
var ErrNotConfigured = errors.New(EnvURL + " is not set")

// Configured reports whether a NATS server URL is present in the environment.
func Configured() bool {
	return os.Getenv(EnvURL) != ""
}

// NewClient connects to the NATS server named by NATS_URL.
// Without options the connection is named "courier" and compressed.
func NewClient(opts ...nats.Option) (*nats.Conn, error) {
	url := os.Getenv(EnvURL)
	if url == "" {
		return nil, ErrNotConfigured
	}
	if len(opts) == 0 {
		opts = append(opts, nats.Name("courier"), nats.Compression(true))
	}
	return nats.Connect(url, opts...)
}
