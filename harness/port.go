package harness

import (
	"context"
	"log/slog"
	"os"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// PortReclaimer frees a TCP port left bound by an earlier run. It is
// best-effort: discovery or kill failures are logged and ignored.
type PortReclaimer struct {
	Grace  time.Duration
	Logger *slog.Logger

	listeners func(ctx context.Context, port uint32) ([]int32, error)
	kill      func(ctx context.Context, pid int32) error
}

// NewPortReclaimer returns a reclaimer that waits grace after killing
// any occupant so the OS can release the socket.
func NewPortReclaimer(grace time.Duration, logger *slog.Logger) *PortReclaimer {
	return &PortReclaimer{
		Grace:     grace,
		Logger:    logger,
		listeners: listenersOn,
		kill:      killProcess,
	}
}

// Reclaim kills every other process listening on port and returns
// the pids it killed.
func (r *PortReclaimer) Reclaim(ctx context.Context, port int) []int32 {
	pids, err := r.listeners(ctx, uint32(port))
	if err != nil {
		r.Logger.DebugContext(ctx, "port discovery unavailable",
			slog.Int("port", port),
			slog.String("error", err.Error()),
		)

		return nil
	}

	self := int32(os.Getpid())

	var killed []int32

	for _, pid := range pids {
		if pid == self || pid == 0 {
			continue
		}

		r.Logger.InfoContext(ctx, "killing process bound to port",
			slog.Int("port", port),
			slog.Int("pid", int(pid)),
		)

		if err := r.kill(ctx, pid); err != nil {
			r.Logger.WarnContext(ctx, "failed to kill port occupant",
				slog.Int("pid", int(pid)),
				slog.String("error", err.Error()),
			)

			continue
		}

		killed = append(killed, pid)
	}

	if len(killed) > 0 && r.Grace > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(r.Grace):
		}
	}

	return killed
}

func listenersOn(ctx context.Context, port uint32) ([]int32, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}

	seen := make(map[int32]bool)

	var pids []int32

	for _, c := range conns {
		if c.Laddr.Port != port || c.Status != "LISTEN" || seen[c.Pid] {
			continue
		}

		seen[c.Pid] = true
		pids = append(pids, c.Pid)
	}

	return pids, nil
}

func killProcess(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}

	return p.KillWithContext(ctx)
}
