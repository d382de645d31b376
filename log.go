package modguard

import (
	"io"
	"log/slog"
)

// nopLogger discards all records; it is the default logger for any
// component accepting an injectable *slog.Logger.
var nopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
