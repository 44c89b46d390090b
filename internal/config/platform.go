package config

import (
	"fmt"
	"log/slog"
)

// Platform is Design Note §9's re-architecture of "real-time thread
// priorities and CPU pinning from library code": a small shim isolating
// the only truly OS-specific calls this module makes, with "log and
// continue" failure semantics rather than a fatal error, so a missing
// CAP_SYS_NICE or an unsupported platform never takes a routing zone's
// worker down. Tests inject a mock Platform instead of the real OS calls.
type Platform interface {
	// ApplySchedParams attempts to set the calling goroutine's underlying
	// OS thread to policy/priority. Returning an error never aborts
	// startup; the caller logs and continues at default scheduling.
	ApplySchedParams(policy SchedPolicy, priority int) error
	// SetAffinity attempts to pin the calling goroutine's OS thread to
	// cpus. An empty cpus means "no pinning" and is always a no-op.
	SetAffinity(cpus []int) error
}

// NoopPlatform is the default Platform: every call is a no-op that
// succeeds, correct for a development machine or CI where real-time
// scheduling is neither available nor desired. The production platform
// shim (pthread_setschedparam / sched_setaffinity bindings) is out of this
// core's scope (spec §1 treats the OS/hardware boundary as an external
// collaborator); NoopPlatform is what every worker actually runs against
// unless a real shim is substituted.
type NoopPlatform struct{}

func (NoopPlatform) ApplySchedParams(SchedPolicy, int) error { return nil }
func (NoopPlatform) SetAffinity([]int) error                 { return nil }

// ApplyToCurrentThread best-effort applies s's scheduling policy,
// priority, and affinity to the calling goroutine's thread via platform,
// logging and continuing on any failure (Design Note §9).
func ApplyToCurrentThread(platform Platform, s Scheduling, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if platform == nil {
		platform = NoopPlatform{}
	}
	if err := platform.ApplySchedParams(s.Policy, s.Priority); err != nil {
		logger.Warn("failed to apply real-time scheduling parameters, continuing at default priority",
			"policy", s.Policy.String(), "priority", s.Priority, "err", err)
	}
	if len(s.CPUAffinities) == 0 {
		return
	}
	if err := platform.SetAffinity(s.CPUAffinities); err != nil {
		logger.Warn("failed to pin worker thread to configured CPU affinity, continuing unpinned",
			"cpus", fmt.Sprint(s.CPUAffinities), "err", err)
	}
}
