// Package config loads the master's YAML-file configurable options,
// the file-based counterpart to the handful of flags cmd/master
// exposes directly. A command-line entrypoint can default most knobs
// inline, but this list is long enough that repeating it as flags
// would be unwieldy, so it lives in an optional config file instead.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Options mirrors the enumerated configurable options: CDC state table
// sizing and retention, load balancer gating and per-run caps, leader
// step-down backoff, and telemetry opt-out. Default() holds the
// production values; Load overlays whatever the file sets on top of
// them.
type Options struct {
	CDCStateTableNumTablets int `yaml:"cdc_state_table_num_tablets"`
	CDCWalRetentionTimeSecs int `yaml:"cdc_wal_retention_time_secs"`

	EnableLoadBalancing                bool `yaml:"enable_load_balancing"`
	LeaderBalanceThreshold              int `yaml:"leader_balance_threshold"`
	LeaderBalanceUnresponsiveTimeoutMs  int `yaml:"leader_balance_unresponsive_timeout_ms"`

	LoadBalancerMaxConcurrentAdds              int `yaml:"load_balancer_max_concurrent_adds"`
	LoadBalancerMaxConcurrentRemovals          int `yaml:"load_balancer_max_concurrent_removals"`
	LoadBalancerMaxConcurrentMoves             int `yaml:"load_balancer_max_concurrent_moves"`
	LoadBalancerMaxConcurrentTabletBootstraps   int `yaml:"load_balancer_max_concurrent_tablet_remote_bootstraps"`
	LoadBalancerMaxOverReplicatedTablets        int `yaml:"load_balancer_max_over_replicated_tablets"`

	MinLeaderStepdownRetryIntervalMs int `yaml:"min_leader_stepdown_retry_interval_ms"`

	CallhomeEnabled      bool `yaml:"callhome_enabled"`
	CallhomeIntervalSecs int  `yaml:"callhome_interval_secs"`

	// TestAllowSkewedClockInYSQL is a fault-injection gate for clock-skew
	// testing. Never set this true outside a test environment.
	TestAllowSkewedClockInYSQL bool `yaml:"TEST_allow_skewed_clock_in_ysql"`
}

// Default returns the zero-file configuration: load balancing on,
// optimal leader equalization, and telemetry on, matching what a
// cluster started with no config file at all should do.
func Default() Options {
	o := Options{
		EnableLoadBalancing:                  true,
		CDCWalRetentionTimeSecs:              14400,
		LoadBalancerMaxConcurrentAdds:        1,
		LoadBalancerMaxConcurrentRemovals:    1,
		LoadBalancerMaxConcurrentMoves:       1,
		LoadBalancerMaxConcurrentTabletBootstraps: 2,
		LoadBalancerMaxOverReplicatedTablets: 1,
		MinLeaderStepdownRetryIntervalMs:     20000,
		CallhomeEnabled:                      true,
		CallhomeIntervalSecs:                 3600,
	}
	return o
}

// Load reads options from path on top of Default(): a field the file
// does not mention keeps its Default() value, and a field the file
// sets, even to zero or false, takes the file's value. A missing path
// is not an error:
// it returns Default() unchanged, so an absent config file just means
// defaults.
func Load(path string) (Options, error) {
	opts := Default()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return opts, nil
	}
	if err != nil {
		return Options{}, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	if opts.TestAllowSkewedClockInYSQL {
		return Options{}, fmt.Errorf("config: TEST_allow_skewed_clock_in_ysql must never be set outside tests")
	}
	return opts, nil
}

// LeaderBalanceUnresponsiveTimeout is LeaderBalanceUnresponsiveTimeoutMs
// as a time.Duration, 0 meaning "no exclusion by silence".
func (o Options) LeaderBalanceUnresponsiveTimeout() time.Duration {
	return time.Duration(o.LeaderBalanceUnresponsiveTimeoutMs) * time.Millisecond
}

// StepdownRetryInterval is MinLeaderStepdownRetryIntervalMs as a
// time.Duration.
func (o Options) StepdownRetryInterval() time.Duration {
	return time.Duration(o.MinLeaderStepdownRetryIntervalMs) * time.Millisecond
}

// BalancerConfig maps the load balancer's slice of Options onto
// balancer.Config's fields directly, without importing pkg/balancer
// itself, so pkg/config has no dependency on pkg/catalog's transitive
// graph; cmd/master wires the two together.
func (o Options) BalancerConfig() (maxAdds, maxRemoves, maxMoves, leaderBalanceThreshold int, stepDownBackoff time.Duration) {
	return o.LoadBalancerMaxConcurrentAdds, o.LoadBalancerMaxConcurrentRemovals, o.LoadBalancerMaxConcurrentMoves, o.LeaderBalanceThreshold, o.StepdownRetryInterval()
}
