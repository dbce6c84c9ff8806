package mcpserver

import (
	"context"
	"os"
	"time"

	"veritas/internal/logging"
)

const defaultWatchInterval = 2 * time.Second

// WatchParent cancels the server when its parent process goes away, so an
// editor restart does not leave orphaned servers behind.
//
// It must not read stdin: the stdio transport owns it, and stolen bytes
// corrupt the JSON-RPC stream.
func WatchParent(ctx context.Context, cancel context.CancelFunc, every time.Duration) {
	ppid := os.Getppid()
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if os.Getppid() != ppid {
					logging.New("mcp").Warn("parent process exited, shutting down", "ppid", ppid)
					cancel()
					return
				}
			}
		}
	}()
}
