// dbrestore restores logical PostgreSQL backups and their object storage
// trees.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"dbrestore/cmd"
	"dbrestore/internal/config"
	"dbrestore/internal/exitcode"
	"dbrestore/internal/logger"
)

// Build information (set by ldflags)
var (
	version   = "1.4.0"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cfg := config.New()
	cfg.Version = version
	cfg.BuildTime = buildTime
	cfg.GitCommit = gitCommit

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	log := logger.New(level, cfg.LogFormat)

	applyMemoryLimit(log)

	err := cmd.Execute(ctx, cfg, log)
	cancel()
	if err == nil {
		return
	}
	if errors.Is(err, cmd.ErrPartialFailure) {
		fmt.Fprintln(os.Stderr, color.YellowString("warning: %v", err))
		os.Exit(exitcode.PartialFailure)
	}
	fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
	os.Exit(exitcode.ExitWithCode(err))
}

// applyMemoryLimit caps the Go heap below a container memory limit. Large
// NDJSON batches otherwise grow the heap past the cgroup limit and the
// process is OOM-killed without a trace. GOMEMLIMIT always wins.
func applyMemoryLimit(log logger.Logger) {
	if os.Getenv("GOMEMLIMIT") != "" {
		return
	}
	limit := detectCgroupMemoryLimit()
	if limit <= 0 {
		return
	}
	heap := int64(float64(limit) * 0.85)
	if heap < 256<<20 {
		heap = 256 << 20
	}
	debug.SetMemoryLimit(heap)
	log.Debug("Container memory limit detected", "cgroup_limit_mb", limit>>20, "heap_limit_mb", heap>>20)
}

// detectCgroupMemoryLimit returns the cgroup v2 or v1 memory limit in
// bytes, or 0 when unlimited or not in a cgroup
func detectCgroupMemoryLimit() int64 {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		s := strings.TrimSpace(string(data))
		if s != "max" {
			if limit, err := strconv.ParseInt(s, 10, 64); err == nil && limit > 0 {
				return limit
			}
		}
	}
	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		// v1 reports "unlimited" as a value near MaxInt64
		if limit, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil && limit > 0 && limit < 1<<62 {
			return limit
		}
	}
	return 0
}
