// Package klog is the kernel's structured logging surface. It wraps
// log/slog the way the teacher's packages wrap raw fmt.Printf kernel-console
// prints (fs/blk.go's bdev_debug-gated output, mem/mem.go's boot banner),
// upgraded to leveled, field-based logging.
package klog

import (
	"log/slog"
	"os"
)

var root = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

/// SetLevel raises or lowers the minimum logged level at runtime.
func SetLevel(lvl slog.Level) {
	root = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))
}

/// For returns a logger scoped to subsystem, analogous to the teacher's
/// per-file bdev_debug gate but composable across every subsystem.
func For(subsystem string) *slog.Logger {
	return root.With("subsys", subsystem)
}
