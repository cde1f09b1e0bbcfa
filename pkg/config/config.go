// Package config declares the schema of recognized configuration keys and
// materializes typed settings from the store's key/value table.
package config

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/krishnasharma4415/QueueCTL/pkg/core"
	"github.com/krishnasharma4415/QueueCTL/pkg/storage"
)

// DefaultDBPath is where the database lives unless db_path says otherwise.
// The registry itself is stored in the database, so the CLI bootstraps from
// this path before honoring an override.
const DefaultDBPath = ".data/queuectl.db"

// Recognized configuration keys.
const (
	KeyMaxRetries         = "max_retries"
	KeyBackoffBase        = "backoff_base"
	KeyPollIntervalMS     = "poll_interval_ms"
	KeyDBPath             = "db_path"
	KeyStaleWorkerTimeout = "stale_worker_timeout_seconds"
	KeyHeartbeatInterval  = "worker_heartbeat_interval_seconds"
	KeyDefaultTimeout     = "default_timeout_seconds"
	KeyLogDir             = "log_dir"
)

// keySpec describes one recognized key: its default ("" means unset) and the
// rule its value must satisfy.
type keySpec struct {
	def      string
	validate func(value string) error
}

var schema = map[string]keySpec{
	KeyMaxRetries:         {def: "3", validate: intAtLeast(0)},
	KeyBackoffBase:        {def: "2", validate: intAtLeast(1)},
	KeyPollIntervalMS:     {def: "500", validate: intAtLeast(1)},
	KeyDBPath:             {def: DefaultDBPath, validate: nonEmpty},
	KeyStaleWorkerTimeout: {def: "30", validate: intAtLeast(1)},
	KeyHeartbeatInterval:  {def: "5", validate: intAtLeast(1)},
	KeyDefaultTimeout:     {def: "", validate: intAtLeast(1)},
	KeyLogDir:             {def: "", validate: func(string) error { return nil }},
}

func nonEmpty(value string) error {
	if value == "" {
		return fmt.Errorf("%w: value must not be empty", core.ErrInvalidConfigValue)
	}
	return nil
}

func intAtLeast(min int) func(string) error {
	return func(value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %q is not an integer", core.ErrInvalidConfigValue, value)
		}
		if n < min {
			return fmt.Errorf("%w: %d is below the minimum %d", core.ErrInvalidConfigValue, n, min)
		}
		return nil
	}
}

// Keys returns the recognized keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Registry is the typed configuration surface over the store's KV table.
type Registry struct {
	store *storage.Store
}

// NewRegistry creates a registry backed by store.
func NewRegistry(store *storage.Store) *Registry {
	return &Registry{store: store}
}

// Get returns the effective value for key: the persisted override if any,
// the schema default otherwise. Unknown keys fail with ErrUnknownConfigKey;
// keys with neither override nor default fail with ErrNotFound.
func (r *Registry) Get(ctx context.Context, key string) (string, error) {
	spec, ok := schema[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", core.ErrUnknownConfigKey, key)
	}
	value, found, err := r.store.GetConfig(ctx, key)
	if err != nil {
		return "", err
	}
	if found {
		return value, nil
	}
	if spec.def == "" {
		return "", fmt.Errorf("%w: config key %s is not set", core.ErrNotFound, key)
	}
	return spec.def, nil
}

// Set validates and persists an override. Unknown keys and values that fail
// the key's rule are rejected.
func (r *Registry) Set(ctx context.Context, key, value string) error {
	spec, ok := schema[key]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownConfigKey, key)
	}
	if err := spec.validate(value); err != nil {
		return fmt.Errorf("config key %s: %w", key, err)
	}
	return r.store.SetConfig(ctx, key, value)
}

// List returns every recognized key with its effective value. Keys that are
// unset and have no default are omitted.
func (r *Registry) List(ctx context.Context) (map[string]string, error) {
	overrides, err := r.store.ListConfig(ctx)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(schema))
	for key, spec := range schema {
		if v, ok := overrides[key]; ok {
			values[key] = v
			continue
		}
		if spec.def != "" {
			values[key] = spec.def
		}
	}
	return values, nil
}

// Settings is a typed snapshot of the effective configuration, consumed by
// the queue service and the worker runtime.
type Settings struct {
	MaxRetries         int
	BackoffBase        int
	PollInterval       time.Duration
	DBPath             string
	StaleWorkerTimeout time.Duration
	HeartbeatInterval  time.Duration
	DefaultTimeout     time.Duration // 0 means no default timeout
	LogDir             string        // "" disables worker file logging
}

// DefaultSettings returns the settings produced by an empty registry.
func DefaultSettings() Settings {
	return Settings{
		MaxRetries:         3,
		BackoffBase:        2,
		PollInterval:       500 * time.Millisecond,
		DBPath:             DefaultDBPath,
		StaleWorkerTimeout: 30 * time.Second,
		HeartbeatInterval:  5 * time.Second,
	}
}

// Load materializes Settings from the registry. Persisted values that no
// longer parse surface as ErrInvalidConfigValue rather than being silently
// replaced by defaults.
func (r *Registry) Load(ctx context.Context) (Settings, error) {
	values, err := r.List(ctx)
	if err != nil {
		return Settings{}, err
	}

	s := DefaultSettings()
	if err := loadInt(values, KeyMaxRetries, &s.MaxRetries); err != nil {
		return Settings{}, err
	}
	if err := loadInt(values, KeyBackoffBase, &s.BackoffBase); err != nil {
		return Settings{}, err
	}
	if err := loadDuration(values, KeyPollIntervalMS, time.Millisecond, &s.PollInterval); err != nil {
		return Settings{}, err
	}
	if v, ok := values[KeyDBPath]; ok {
		s.DBPath = v
	}
	if err := loadDuration(values, KeyStaleWorkerTimeout, time.Second, &s.StaleWorkerTimeout); err != nil {
		return Settings{}, err
	}
	if err := loadDuration(values, KeyHeartbeatInterval, time.Second, &s.HeartbeatInterval); err != nil {
		return Settings{}, err
	}
	if err := loadDuration(values, KeyDefaultTimeout, time.Second, &s.DefaultTimeout); err != nil {
		return Settings{}, err
	}
	s.LogDir = values[KeyLogDir]
	return s, nil
}

func loadInt(values map[string]string, key string, dst *int) error {
	v, ok := values[key]
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", core.ErrInvalidConfigValue, key, v)
	}
	*dst = n
	return nil
}

func loadDuration(values map[string]string, key string, unit time.Duration, dst *time.Duration) error {
	v, ok := values[key]
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", core.ErrInvalidConfigValue, key, v)
	}
	*dst = time.Duration(n) * unit
	return nil
}
