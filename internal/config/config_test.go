package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaultsWhenNoFileFound(t *testing.T) {
	t.Setenv("SMARTX_CFG_DIR", t.TempDir())
	s := Load(nil)
	assert.Equal(t, SchedFIFO, s.Policy)
	assert.Equal(t, defaultSchedPriority, s.Priority)
	assert.Empty(t, s.CPUAffinities)
}

func TestLoadReadsRecognizedKeys(t *testing.T) {
	dir := t.TempDir()
	contents := "scheduling.rt.sched_policy=rr\n" +
		"scheduling.rt.sched_priority=45\n" +
		"scheduling.rt.cpu_affinities=0,2,3\n" +
		"runner.zone.rear.enabled=true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "smartxbar.conf"), []byte(contents), 0o644))
	t.Setenv("SMARTX_CFG_DIR", dir)

	s := Load(nil)
	assert.Equal(t, SchedRR, s.Policy)
	assert.Equal(t, 45, s.Priority)
	assert.Equal(t, []int{0, 2, 3}, s.CPUAffinities)
	assert.True(t, s.RunnerEnabled("zone.rear"))
	assert.False(t, s.RunnerEnabled("zone.unconfigured"))
}

func TestLoadClampsOutOfRangePriorityToDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "smartxbar.conf"), []byte("scheduling.rt.sched_priority=150\n"), 0o644))
	t.Setenv("SMARTX_CFG_DIR", dir)

	s := Load(nil)
	assert.Equal(t, defaultSchedPriority, s.Priority)
}

func TestLoadDefaultsUnrecognizedPolicyToFIFO(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "smartxbar.conf"), []byte("scheduling.rt.sched_policy=bogus\n"), 0o644))
	t.Setenv("SMARTX_CFG_DIR", dir)

	s := Load(nil)
	assert.Equal(t, SchedFIFO, s.Policy)
}

func TestDerivedWorkerPriorityIsOneLessThanBase(t *testing.T) {
	s := Scheduling{Priority: 20}
	assert.Equal(t, 19, s.DerivedWorkerPriority())

	s = Scheduling{Priority: 0}
	assert.Equal(t, 0, s.DerivedWorkerPriority())
}

type recordingPlatform struct {
	schedErr, affinityErr error
	appliedPolicy         SchedPolicy
	appliedPriority       int
	appliedCPUs           []int
}

func (p *recordingPlatform) ApplySchedParams(policy SchedPolicy, priority int) error {
	p.appliedPolicy, p.appliedPriority = policy, priority
	return p.schedErr
}

func (p *recordingPlatform) SetAffinity(cpus []int) error {
	p.appliedCPUs = cpus
	return p.affinityErr
}

func TestApplyToCurrentThreadForwardsToPlatform(t *testing.T) {
	platform := &recordingPlatform{}
	s := Scheduling{Policy: SchedFIFO, Priority: 20, CPUAffinities: []int{1, 2}}

	ApplyToCurrentThread(platform, s, nil)

	assert.Equal(t, SchedFIFO, platform.appliedPolicy)
	assert.Equal(t, 20, platform.appliedPriority)
	assert.Equal(t, []int{1, 2}, platform.appliedCPUs)
}

func TestApplyToCurrentThreadNeverPanicsOnPlatformError(t *testing.T) {
	platform := &recordingPlatform{schedErr: assertErr{}, affinityErr: assertErr{}}
	s := Scheduling{Policy: SchedFIFO, Priority: 20, CPUAffinities: []int{0}}

	assert.NotPanics(t, func() { ApplyToCurrentThread(platform, s, nil) })
}

func TestNoopPlatformAlwaysSucceeds(t *testing.T) {
	var p NoopPlatform
	assert.NoError(t, p.ApplySchedParams(SchedFIFO, 20))
	assert.NoError(t, p.SetAffinity([]int{0, 1}))
}

type assertErr struct{}

func (assertErr) Error() string { return "injected failure" }
