// Package plugins bundles hook sets for common cross-cutting concerns.
// Each constructor returns a courier.Plugin for Broker.RegisterHooks.
package plugins
