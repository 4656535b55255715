// =============================================================================
// SuperAgent configuration hot reload
// =============================================================================
// Applies configuration changes to a running process without a restart,
// for the subset of fields that can safely change mid-flight. Changes to
// restart-only fields are detected and logged but not applied.
// =============================================================================
package config

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HotReloadManager owns the live *Config, watches its backing file, and
// applies whitelisted field changes as they land.
type HotReloadManager struct {
	mu sync.RWMutex

	config     *Config
	configPath string

	watcher *FileWatcher
	logger  *zap.Logger

	changeCallbacks []ChangeCallback
	reloadCallbacks []ReloadCallback

	changeLog []ConfigChange
	running   bool
}

// ChangeCallback is invoked once per changed field.
type ChangeCallback func(change ConfigChange)

// ReloadCallback is invoked once per applied reload with both configs.
type ReloadCallback func(oldConfig, newConfig *Config)

// ConfigChange records one observed field change.
type ConfigChange struct {
	// Path is the dotted field path, e.g. "Log.Level".
	Path      string      `json:"path"`
	OldValue  interface{} `json:"old_value"`
	NewValue  interface{} `json:"new_value"`
	Timestamp time.Time   `json:"timestamp"`
	// Source is "file", "api", or "manual".
	Source string `json:"source"`
	// Applied is false when the field requires a restart.
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// HotReloadableField describes one whitelisted field.
type HotReloadableField struct {
	Path            string
	Description     string
	RequiresRestart bool
	Sensitive       bool
	Validator       func(value interface{}) error
}

// hotReloadableFields whitelists the fields a running process can absorb.
// Anything absent here requires a restart.
var hotReloadableFields = map[string]HotReloadableField{
	"Log.Level": {
		Path:        "Log.Level",
		Description: "Log level (debug, info, warn, error)",
	},
	"Log.Format": {
		Path:        "Log.Format",
		Description: "Log format (json, console)",
	},

	"LLM.MaxRetries": {
		Path:        "LLM.MaxRetries",
		Description: "Maximum LLM request retries",
	},
	"LLM.Timeout": {
		Path:        "LLM.Timeout",
		Description: "LLM request timeout",
	},
	"LLM.DefaultProvider": {
		Path:        "LLM.DefaultProvider",
		Description: "Default provider name",
	},

	"Executor.DefaultTimeoutS": {
		Path:        "Executor.DefaultTimeoutS",
		Description: "Per-tool-call timeout in seconds",
		Validator: func(v interface{}) error {
			if n, ok := v.(int); ok && n <= 0 {
				return fmt.Errorf("default_timeout_s must be positive")
			}
			return nil
		},
	},
	"Executor.MaxParallelSteps": {
		Path:        "Executor.MaxParallelSteps",
		Description: "Concurrent-step cap per parallel group",
		Validator: func(v interface{}) error {
			if n, ok := v.(int); ok && n <= 0 {
				return fmt.Errorf("max_parallel_steps must be positive")
			}
			return nil
		},
	},

	"Memory.CompressionThreshold": {
		Path:        "Memory.CompressionThreshold",
		Description: "Pending-buffer size that triggers compression",
	},

	"UX.Temperature": {
		Path:        "UX.Temperature",
		Description: "Sampling temperature for interactive requests",
		Validator: func(v interface{}) error {
			if f, ok := v.(float64); ok && (f < 0 || f > 2) {
				return fmt.Errorf("temperature must be between 0 and 2")
			}
			return nil
		},
	},
	"UX.StreamingEnabled": {
		Path:        "UX.StreamingEnabled",
		Description: "Stream responses in interactive mode",
	},
	"UX.AutoSave": {
		Path:        "UX.AutoSave",
		Description: "Persist the session after every turn",
	},

	"Telemetry.Enabled": {
		Path:        "Telemetry.Enabled",
		Description: "Enable telemetry export",
	},
	"Telemetry.SampleRate": {
		Path:        "Telemetry.SampleRate",
		Description: "Trace sample rate",
	},

	// Connection-level settings bind at startup.
	"Database.Driver": {
		Path:            "Database.Driver",
		Description:     "SQL driver",
		RequiresRestart: true,
	},
	"Redis.Addr": {
		Path:            "Redis.Addr",
		Description:     "Cache address",
		RequiresRestart: true,
	},
	"LLM.APIKey": {
		Path:      "LLM.APIKey",
		Sensitive: true,
	},
	"Database.Password": {
		Path:            "Database.Password",
		RequiresRestart: true,
		Sensitive:       true,
	},
	"Redis.Password": {
		Path:            "Redis.Password",
		RequiresRestart: true,
		Sensitive:       true,
	},
}

// HotReloadOption configures a HotReloadManager.
type HotReloadOption func(*HotReloadManager)

// WithHotReloadLogger sets the manager's logger.
func WithHotReloadLogger(logger *zap.Logger) HotReloadOption {
	return func(m *HotReloadManager) {
		m.logger = logger
	}
}

// WithConfigFile sets the file watched for reloads.
func WithConfigFile(path string) HotReloadOption {
	return func(m *HotReloadManager) {
		m.configPath = path
	}
}

// NewHotReloadManager wraps config. Watching starts with Start.
func NewHotReloadManager(config *Config, opts ...HotReloadOption) *HotReloadManager {
	m := &HotReloadManager{
		config: config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start watches the config file (when one was given) until ctx ends.
func (m *HotReloadManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("hot reload manager already running")
	}
	if m.configPath == "" {
		m.running = true
		return nil
	}

	w, err := NewFileWatcher([]string{m.configPath}, WithWatcherLogger(m.logger))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.OnChange(m.handleFileChange)
	if err := w.Start(ctx); err != nil {
		return err
	}
	m.watcher = w
	m.running = true
	return nil
}

// Stop halts watching.
func (m *HotReloadManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	if m.watcher != nil {
		err := m.watcher.Stop()
		m.watcher = nil
		return err
	}
	return nil
}

func (m *HotReloadManager) handleFileChange(event FileEvent) {
	if event.Op != FileOpWrite && event.Op != FileOpCreate {
		return
	}
	if err := m.ReloadFromFile(); err != nil {
		m.logger.Warn("config reload failed", zap.String("path", event.Path), zap.Error(err))
	}
}

// ReloadFromFile re-reads the backing file and applies the delta.
func (m *HotReloadManager) ReloadFromFile() error {
	m.mu.RLock()
	path := m.configPath
	m.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("no config file configured")
	}

	newConfig, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		return err
	}
	if err := newConfig.Validate(); err != nil {
		return err
	}
	return m.ApplyConfig(newConfig, "file")
}

// ApplyConfig diffs newConfig against the live one and applies every
// hot-reloadable change. Restart-only changes are logged unapplied.
func (m *HotReloadManager) ApplyConfig(newConfig *Config, source string) error {
	m.mu.Lock()
	oldConfig := m.config
	changes := detectChanges(oldConfig, newConfig)

	applied := false
	// live starts as a copy of the old config and receives only the
	// changes that pass the whitelist and validators.
	live := *oldConfig
	for i := range changes {
		changes[i].Source = source
		field, reloadable := hotReloadableFields[changes[i].Path]
		switch {
		case !reloadable || field.RequiresRestart:
			changes[i].Applied = false
		case field.Validator != nil && field.Validator(changes[i].NewValue) != nil:
			changes[i].Applied = false
			changes[i].Error = field.Validator(changes[i].NewValue).Error()
		default:
			if err := setNestedField(reflect.ValueOf(&live).Elem(), changes[i].Path, changes[i].NewValue); err != nil {
				changes[i].Error = err.Error()
				break
			}
			changes[i].Applied = true
			applied = true
		}
		m.changeLog = append(m.changeLog, changes[i])
	}
	if applied {
		newConfig = &live
		m.config = newConfig
	}

	changeCbs := make([]ChangeCallback, len(m.changeCallbacks))
	copy(changeCbs, m.changeCallbacks)
	reloadCbs := make([]ReloadCallback, len(m.reloadCallbacks))
	copy(reloadCbs, m.reloadCallbacks)
	m.mu.Unlock()

	for _, change := range changes {
		m.logChange(change)
		for _, cb := range changeCbs {
			cb(change)
		}
	}
	if applied {
		for _, cb := range reloadCbs {
			cb(oldConfig, newConfig)
		}
	}
	return nil
}

// detectChanges walks both configs and records every leaf difference.
func detectChanges(oldConfig, newConfig *Config) []ConfigChange {
	var changes []ConfigChange
	compareStructs("", reflect.ValueOf(oldConfig).Elem(), reflect.ValueOf(newConfig).Elem(), &changes)
	return changes
}

func compareStructs(prefix string, oldVal, newVal reflect.Value, changes *[]ConfigChange) {
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		name := t.Field(i).Name
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		of, nf := oldVal.Field(i), newVal.Field(i)
		if of.Kind() == reflect.Struct && of.Type() != reflect.TypeOf(time.Duration(0)) {
			compareStructs(path, of, nf, changes)
			continue
		}
		if !reflect.DeepEqual(of.Interface(), nf.Interface()) {
			*changes = append(*changes, ConfigChange{
				Path:      path,
				OldValue:  of.Interface(),
				NewValue:  nf.Interface(),
				Timestamp: time.Now(),
			})
		}
	}
}

func (m *HotReloadManager) logChange(change ConfigChange) {
	oldVal, newVal := change.OldValue, change.NewValue
	if f, ok := hotReloadableFields[change.Path]; ok && f.Sensitive {
		oldVal, newVal = "[REDACTED]", "[REDACTED]"
	}
	m.logger.Info("config change",
		zap.String("path", change.Path),
		zap.Any("old", oldVal),
		zap.Any("new", newVal),
		zap.Bool("applied", change.Applied),
		zap.String("source", change.Source),
	)
}

// OnChange registers a per-field callback.
func (m *HotReloadManager) OnChange(callback ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeCallbacks = append(m.changeCallbacks, callback)
}

// OnReload registers a per-reload callback.
func (m *HotReloadManager) OnReload(callback ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadCallbacks = append(m.reloadCallbacks, callback)
}

// GetConfig returns the live configuration.
func (m *HotReloadManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetChangeLog returns the most recent limit changes, newest last.
// limit <= 0 returns the whole log.
func (m *HotReloadManager) GetChangeLog(limit int) []ConfigChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.changeLog) {
		limit = len(m.changeLog)
	}
	out := make([]ConfigChange, limit)
	copy(out, m.changeLog[len(m.changeLog)-limit:])
	return out
}

// UpdateField sets one hot-reloadable field by dotted path.
func (m *HotReloadManager) UpdateField(path string, value interface{}) error {
	field, ok := hotReloadableFields[path]
	if !ok {
		return fmt.Errorf("field %s is not hot reloadable", path)
	}
	if field.RequiresRestart {
		return fmt.Errorf("field %s requires a restart", path)
	}
	if field.Validator != nil {
		if err := field.Validator(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", path, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, err := getNestedField(reflect.ValueOf(m.config).Elem(), path)
	if err != nil {
		return err
	}
	if err := setNestedField(reflect.ValueOf(m.config).Elem(), path, value); err != nil {
		return err
	}

	change := ConfigChange{
		Path:      path,
		OldValue:  old,
		NewValue:  value,
		Timestamp: time.Now(),
		Source:    "manual",
		Applied:   true,
	}
	m.changeLog = append(m.changeLog, change)
	m.logChange(change)
	return nil
}

func getNestedField(v reflect.Value, path string) (interface{}, error) {
	for _, part := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return nil, fmt.Errorf("path %s does not resolve to a field", path)
		}
		v = v.FieldByName(part)
		if !v.IsValid() {
			return nil, fmt.Errorf("unknown field in path %s", path)
		}
	}
	return v.Interface(), nil
}

func setNestedField(v reflect.Value, path string, value interface{}) error {
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		v = v.FieldByName(part)
		if !v.IsValid() {
			return fmt.Errorf("unknown field in path %s", path)
		}
	}
	field := v.FieldByName(parts[len(parts)-1])
	if !field.IsValid() || !field.CanSet() {
		return fmt.Errorf("field %s cannot be set", path)
	}

	val := reflect.ValueOf(value)
	if !val.Type().AssignableTo(field.Type()) {
		if val.Type().ConvertibleTo(field.Type()) {
			val = val.Convert(field.Type())
		} else {
			return fmt.Errorf("value of type %s not assignable to %s", val.Type(), field.Type())
		}
	}
	field.Set(val)
	return nil
}

// GetHotReloadableFields returns the whitelist for display surfaces.
func GetHotReloadableFields() map[string]HotReloadableField {
	out := make(map[string]HotReloadableField, len(hotReloadableFields))
	for k, v := range hotReloadableFields {
		out[k] = v
	}
	return out
}

// IsHotReloadable reports whether path may change without a restart.
func IsHotReloadable(path string) bool {
	f, ok := hotReloadableFields[path]
	return ok && !f.RequiresRestart
}

// SanitizedConfig renders the live config as a map with secret-bearing
// values masked, safe for logs and display.
func (m *HotReloadManager) SanitizedConfig() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data := structToMap(reflect.ValueOf(m.config).Elem())
	redactSensitiveFields(data, "")
	return data
}

func structToMap(v reflect.Value) map[string]interface{} {
	out := make(map[string]interface{})
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		name := t.Field(i).Name
		f := v.Field(i)
		switch {
		case f.Kind() == reflect.Struct && f.Type() != reflect.TypeOf(time.Duration(0)):
			out[name] = structToMap(f)
		case f.Kind() == reflect.Map && f.Type().Elem().Kind() == reflect.Struct:
			// Keyed blocks (llm.providers) are rendered per key so their
			// secret-bearing fields are masked too.
			nested := make(map[string]interface{}, f.Len())
			iter := f.MapRange()
			for iter.Next() {
				nested[fmt.Sprint(iter.Key().Interface())] = structToMap(iter.Value())
			}
			out[name] = nested
		default:
			out[name] = f.Interface()
		}
	}
	return out
}

// redactSensitiveFields masks any value whose key name suggests a secret.
func redactSensitiveFields(data map[string]interface{}, prefix string) {
	for k, v := range data {
		if nested, ok := v.(map[string]interface{}); ok {
			redactSensitiveFields(nested, prefix+k+".")
			continue
		}
		lower := strings.ToLower(k)
		for _, marker := range []string{"key", "token", "secret", "password", "auth"} {
			if strings.Contains(lower, marker) {
				if s, ok := v.(string); ok && s != "" {
					data[k] = "[REDACTED]"
				}
				break
			}
		}
	}
}
