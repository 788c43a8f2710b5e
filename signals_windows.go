// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

//go:build windows

package main

import (
	"context"

	"github.com/soothill/slack-notifier/app"
	"github.com/soothill/slack-notifier/pkg/logger"
)

// setupDebugSignalHandlers is a no-op on Windows as SIGUSR1/SIGUSR2 don't exist.
// Progress is still available from the /progress endpoint when -metrics-addr
// is set.
func setupDebugSignalHandlers(_ context.Context, _ *app.App) {
	logger.Debug().Msg("Debug signal handlers not available on Windows")
}
