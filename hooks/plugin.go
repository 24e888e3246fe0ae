package hooks

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/casualjim/courier/pkg/slogx"
)

// Plugin installs a bundle of hooks on target and returns the cleanup that removes them.
type Plugin[B any] func(target B) (func(), error)

// Install runs every installer eagerly and returns a single cleanup tearing
// down all of the bundles that installed successfully, in reverse order.
// Installers that fail or panic are logged and skipped.
func Install[B any](logger *slog.Logger, target B, plugins ...Plugin[B]) func() {
	logger = slogx.Named(logger, "plugins")
	cleanups := make([]func(), 0, len(plugins))
	for i, plugin := range plugins {
		if plugin == nil {
			continue
		}
		cleanup, err := installOne(target, plugin)
		if err != nil {
			logger.Error("plugin installation failed", slog.Int("plugin", i), slogx.Error(err))
			continue
		}
		if cleanup != nil {
			cleanups = append(cleanups, cleanup)
		}
	}
	return once(func() {
		for _, cleanup := range slices.Backward(cleanups) {
			safeCleanup(logger, cleanup)
		}
	})
}

func installOne[B any](target B, plugin Plugin[B]) (cleanup func(), err error) {
	defer func() {
		if r := recover(); r != nil {
			cleanup, err = nil, fmt.Errorf("installer panicked: %v", r)
		}
	}()
	return plugin(target)
}

func safeCleanup(logger *slog.Logger, cleanup func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("plugin cleanup panicked", slogx.Panic(r))
		}
	}()
	cleanup()
}
