package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	log "github.com/sirupsen/logrus"
)

// ErrPortConflict indicates the OAuth callback port stayed occupied after
// remediation.
var ErrPortConflict = errors.New("callback port in use")

// portKillGrace is how long a stale listener gets to exit after a
// termination request before being killed outright.
const portKillGrace = 3 * time.Second

// clearCallbackPort guarantees the provider's fixed callback port is free
// before the login flow spawns. A listener left over from a previous
// attempt is the single most common cause of silent OAuth failure, so a
// stale process is terminated rather than reported.
func clearCallbackPort(ctx context.Context, port int) error {
	if portFree(port) {
		return nil
	}

	log.Infof("callback port %d is occupied by a stale process, clearing it", port)
	pid, err := listenerPID(ctx, port)
	if err != nil || pid == 0 {
		return fmt.Errorf("%w: port %d is busy and its owner could not be identified; free it with: lsof -i :%d", ErrPortConflict, port, port)
	}

	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return fmt.Errorf("%w: inspect pid %d: %v", ErrPortConflict, pid, err)
	}

	if err := proc.TerminateWithContext(ctx); err != nil {
		log.Debugf("terminate pid %d: %v", pid, err)
	}
	if waitPortFree(ctx, port, portKillGrace) {
		return nil
	}

	if err := proc.KillWithContext(ctx); err != nil {
		log.Debugf("kill pid %d: %v", pid, err)
	}
	if waitPortFree(ctx, port, portKillGrace) {
		return nil
	}

	return fmt.Errorf("%w: port %d is still busy after terminating pid %d; free it with: kill -9 %d", ErrPortConflict, port, pid, pid)
}

// portFree probes the port by binding it.
func portFree(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

func waitPortFree(ctx context.Context, port int, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if portFree(port) {
			return true
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return false
		}
	}
	return portFree(port)
}

// listenerPID finds the process listening on the port.
func listenerPID(ctx context.Context, port int) (int32, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return 0, fmt.Errorf("list connections: %w", err)
	}
	for _, conn := range conns {
		if conn.Status == "LISTEN" && conn.Laddr.Port == uint32(port) {
			return conn.Pid, nil
		}
	}
	return 0, nil
}
