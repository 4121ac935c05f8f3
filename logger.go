package rw

import "github.com/GoCodeAlone/rw/internal/logging"

// Logger defines the interface for application logging.
// rw uses structured logging with key-value pairs after the message:
//
//	logger.Info("Plugin activated", "plugin", "rw.www")
//
// *slog.Logger satisfies it, as do thin adapters over logrus, zap and
// others.
type Logger = logging.Logger
