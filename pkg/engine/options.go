package engine

import "time"

// Mode selects how an execution schedules its scenarios.
type Mode string

const (
	// ModeSequential runs scenarios one at a time in suite order, reusing a
	// single browser session where possible.
	ModeSequential Mode = "sequential"

	// ModeParallel runs scenarios concurrently, bounded by the session
	// pool's capacity.
	ModeParallel Mode = "parallel"
)

// Valid reports whether m names a known execution mode.
func (m Mode) Valid() bool {
	return m == ModeSequential || m == ModeParallel
}

const (
	// DefaultScenarioTimeout bounds one scenario's run unless the suite
	// overrides it.
	DefaultScenarioTimeout = 120 * time.Second

	// DefaultGlobalTimeout bounds a whole execution.
	DefaultGlobalTimeout = 30 * time.Minute

	// DefaultAcquireTimeout bounds one attempt to check a session out of
	// the pool.
	DefaultAcquireTimeout = 30 * time.Second

	// DefaultAcquireRetries is how many times a busy pool is retried
	// before the scenario fails with a resource error.
	DefaultAcquireRetries = 3

	// acquireBackoff is the first retry delay; it doubles per attempt.
	acquireBackoff = 500 * time.Millisecond
)

// Config is the engine's execution policy. The zero value means "use
// defaults", resolved by withDefaults.
type Config struct {
	// Mode is the default scheduling mode for submitted executions.
	Mode Mode

	// FailFast stops scheduling new scenarios after the first failure.
	// In-flight scenarios run to completion; pending ones are skipped.
	// Off by default: the suite keeps running through failures.
	FailFast bool

	// GlobalTimeout caps an entire execution. On expiry the execution is
	// marked TimedOut and outstanding scenarios fail with timeout_error.
	GlobalTimeout time.Duration

	// ScenarioTimeout caps a single scenario unless the scenario or suite
	// sets its own.
	ScenarioTimeout time.Duration

	// AcquireTimeout caps one pool acquisition attempt.
	AcquireTimeout time.Duration

	// AcquireRetries is the number of backed-off retries after a busy
	// pool, on top of the first attempt.
	AcquireRetries int
}

func (c Config) withDefaults() Config {
	if !c.Mode.Valid() {
		c.Mode = ModeSequential
	}
	if c.GlobalTimeout <= 0 {
		c.GlobalTimeout = DefaultGlobalTimeout
	}
	if c.ScenarioTimeout <= 0 {
		c.ScenarioTimeout = DefaultScenarioTimeout
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.AcquireRetries <= 0 {
		c.AcquireRetries = DefaultAcquireRetries
	}
	return c
}

// Options override the engine configuration for a single execution.
type Options struct {
	// Mode overrides the scheduling mode when set.
	Mode Mode

	// FailFast overrides the engine's fail-fast policy when set.
	FailFast *bool

	// GlobalTimeout overrides the execution timeout when positive.
	GlobalTimeout time.Duration

	// ScenarioTimeout overrides the per-scenario timeout when positive.
	ScenarioTimeout time.Duration
}

// resolve folds per-execution overrides into a copy of the engine config.
func (c Config) resolve(opts Options) Config {
	out := c
	if opts.Mode.Valid() {
		out.Mode = opts.Mode
	}
	if opts.FailFast != nil {
		out.FailFast = *opts.FailFast
	}
	if opts.GlobalTimeout > 0 {
		out.GlobalTimeout = opts.GlobalTimeout
	}
	if opts.ScenarioTimeout > 0 {
		out.ScenarioTimeout = opts.ScenarioTimeout
	}
	return out
}
