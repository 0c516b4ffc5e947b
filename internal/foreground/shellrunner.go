package foreground

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"syscall"

	"go.uber.org/zap"
)

// shellBufSize bounds the length of any one line of a shell's stdout; a
// longer line stops the scan there, which spec.md §5 accepts as a reported,
// not fatal, condition. The total output retained is not bounded.
const shellBufSize = 256 * 1024

// runShell spawns argv, isolates it into its own process group with a
// kill-on-parent-death guard, and returns its stdout split into lines.
// A line longer than shellBufSize ends the scan; that truncation is logged,
// not treated as an error.
func runShell(ctx context.Context, log *zap.Logger, argv ...string) ([]string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	sc := bufio.NewScanner(out)
	sc.Buffer(make([]byte, 4096), shellBufSize)

	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		log.Warn("shell output truncated or unreadable", zap.Strings("argv", argv), zap.Error(err))
	}

	if err := cmd.Wait(); err != nil {
		log.Debug("shell exited non-zero", zap.Strings("argv", argv), zap.Error(err))
	}

	return lines, nil
}
