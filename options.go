package hotconfig

import (
	"log/slog"
	"time"

	"github.com/goliatone/go-hotconfig/pkg/activity"
	"github.com/goliatone/go-hotconfig/pkg/state"
)

// DefaultHandlerTimeout bounds each reload handler invocation.
const DefaultHandlerTimeout = 5 * time.Second

// DefaultLockTimeout bounds how long a write waits for another process to
// release the lock file.
const DefaultLockTimeout = 2 * time.Second

// DefaultPollInterval is how often Watch checks the file for edits.
const DefaultPollInterval = time.Second

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	logger         *slog.Logger
	evalLogger     EvaluatorLogger
	handlerTimeout time.Duration
	lockTimeout    time.Duration
	pollInterval   time.Duration
	allowMissing   bool
	store          state.Store
	fileOptions    []state.FileOption
	activityHooks  activity.Hooks
	actor          string
	now            func() time.Time

	evaluators   map[string]Evaluator
	programCache ProgramCache
	functions    *FunctionRegistry
}

func applyOptions(opts []Option) storeConfig {
	cfg := storeConfig{
		handlerTimeout: DefaultHandlerTimeout,
		lockTimeout:    DefaultLockTimeout,
		pollInterval:   DefaultPollInterval,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.evalLogger == nil {
		cfg.evalLogger = SlogEvaluatorLogger(cfg.logger)
	}
	return cfg
}

// WithLogger sets the structured logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *storeConfig) {
		cfg.logger = logger
	}
}

// WithHandlerTimeout bounds each reload handler call. Non-positive values
// disable the bound.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(cfg *storeConfig) {
		cfg.handlerTimeout = timeout
	}
}

// WithLockTimeout bounds the wait for the cross-process lock file. A write
// that cannot take the lock in time fails with a *PersistError and leaves
// the active document in place. The caller's context deadline applies too.
func WithLockTimeout(timeout time.Duration) Option {
	return func(cfg *storeConfig) {
		if timeout > 0 {
			cfg.lockTimeout = timeout
		}
	}
}

// WithPollInterval sets how often Watch checks the file.
func WithPollInterval(interval time.Duration) Option {
	return func(cfg *storeConfig) {
		if interval > 0 {
			cfg.pollInterval = interval
		}
	}
}

// WithAllowMissing lets Open start from an empty document when the file does
// not exist yet. Malformed files are never tolerated.
func WithAllowMissing(allow bool) Option {
	return func(cfg *storeConfig) {
		cfg.allowMissing = allow
	}
}

// WithStateStore replaces the file-backed storage, typically with a
// state.MemoryStore in tests. Watch is unavailable without a file store.
func WithStateStore(store state.Store) Option {
	return func(cfg *storeConfig) {
		cfg.store = store
	}
}

// WithFileOptions forwards options to the file-backed storage.
func WithFileOptions(opts ...state.FileOption) Option {
	return func(cfg *storeConfig) {
		cfg.fileOptions = append(cfg.fileOptions, opts...)
	}
}

// WithActivityHooks receives an audit event for every accepted, rejected or
// failed change. Nil hooks are dropped.
func WithActivityHooks(hooks ...activity.ActivityHook) Option {
	return func(cfg *storeConfig) {
		for _, hook := range hooks {
			if hook != nil {
				cfg.activityHooks = append(cfg.activityHooks, hook)
			}
		}
	}
}

// WithActor names who is making changes through this store in activity events.
func WithActor(actor string) Option {
	return func(cfg *storeConfig) {
		cfg.actor = actor
	}
}

// WithClock overrides the time source used for change timestamps.
func WithClock(now func() time.Time) Option {
	return func(cfg *storeConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithEvaluator registers or replaces the evaluator used for rules naming
// engine.
func WithEvaluator(engine string, e Evaluator) Option {
	return func(cfg *storeConfig) {
		if cfg.evaluators == nil {
			cfg.evaluators = map[string]Evaluator{}
		}
		cfg.evaluators[engine] = e
	}
}
