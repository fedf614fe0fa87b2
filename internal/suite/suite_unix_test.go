//go:build !windows

package suite

import (
	"context"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/deixis/suiterun/internal/report"
)

func TestRun_PassWithBackgroundChild(t *testing.T) {
	// The suite exits 0 while a worker it started still holds the output.
	r := newShellRunner(t, `sleep 30 & echo "worker $!"; exit 0`)

	res := r.Run(context.Background(), domain("core", "settings_core"))
	if res.ExitCode != 0 || res.Status != report.Pass {
		t.Fatalf("ExitCode = %d, Status = %q, Error = %q, want pass", res.ExitCode, res.Status, res.Error)
	}

	fields := strings.Fields(res.Output)
	if len(fields) < 2 || fields[0] != "worker" {
		t.Fatalf("Output = %q", res.Output)
	}
	pid, err := strconv.Atoi(fields[1])
	if err != nil {
		t.Fatalf("parsing worker pid: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for syscall.Kill(pid, 0) == nil && !isZombie(pid) {
		if time.Now().After(deadline) {
			_ = syscall.Kill(pid, syscall.SIGKILL)
			t.Fatalf("worker %d outlived its domain", pid)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func isZombie(pid int) bool {
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	_, after, ok := strings.Cut(string(stat), ") ")
	return ok && strings.HasPrefix(after, "Z")
}
