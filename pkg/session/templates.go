package session

import (
	"log"
	"sort"
	"sync"
)

// TemplateRegistry supplies named default configurations keyed by session
// type. Resolution never fails: unknown types fall back to the "default"
// template with a logged warning.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]Config
}

// NewTemplateRegistry creates a registry seeded with the built-in templates.
func NewTemplateRegistry() *TemplateRegistry {
	r := &TemplateRegistry{
		templates: map[string]Config{
			TypeDefault: {
				SessionType:    TypeDefault,
				TimeoutMinutes: 60,
				MaxOperations:  1000,
				AutoCleanup:    true,
				PersistState:   true,
				LogLevel:       "info",
			},
			TypeAPIWorkflow: {
				SessionType:    TypeAPIWorkflow,
				TimeoutMinutes: 120,
				MaxOperations:  5000,
				AutoCleanup:    true,
				PersistState:   true,
				LogLevel:       "info",
				ResourceLimits: map[string]any{"max_concurrent_api_calls": 10},
			},
			TypeFileProcessing: {
				SessionType:    TypeFileProcessing,
				TimeoutMinutes: 180,
				MaxOperations:  10000,
				AutoCleanup:    true,
				PersistState:   true,
				LogLevel:       "info",
				ResourceLimits: map[string]any{"max_file_size_mb": 100, "max_files": 1000},
			},
			TypeBatchOperation: {
				SessionType:    TypeBatchOperation,
				TimeoutMinutes: 300,
				MaxOperations:  50000,
				AutoCleanup:    true,
				PersistState:   true,
				LogLevel:       "info",
				ResourceLimits: map[string]any{"batch_size": 100, "max_concurrent_batches": 5},
			},
			TypeDevelopment: {
				SessionType:    TypeDevelopment,
				TimeoutMinutes: 240,
				MaxOperations:  2000,
				AutoCleanup:    false, // keep for debugging
				PersistState:   true,
				LogLevel:       "debug",
			},
			TypeTesting: {
				SessionType:    TypeTesting,
				TimeoutMinutes: 30,
				MaxOperations:  500,
				AutoCleanup:    true,
				PersistState:   false,
				LogLevel:       "debug",
			},
			TypeMaintenance: {
				SessionType:    TypeMaintenance,
				TimeoutMinutes: 600,
				MaxOperations:  100,
				AutoCleanup:    false,
				PersistState:   true,
				LogLevel:       "info",
				CustomSettings: map[string]any{"allow_system_operations": true},
			},
		},
	}
	return r
}

// Register adds or replaces a template.
func (r *TemplateRegistry) Register(name string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[name] = cfg
}

// Names returns the registered template names, sorted.
func (r *TemplateRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve produces the effective configuration for a session type. Scalar
// override fields replace the template value wholesale; the two mapping
// fields are merged so that overriding one resource limit does not clobber
// the template's other limits.
func (r *TemplateRegistry) Resolve(sessionType string, overrides map[string]any) Config {
	r.mu.RLock()
	base, ok := r.templates[sessionType]
	if !ok {
		log.Printf("unknown session type %q, using default template", sessionType)
		base = r.templates[TypeDefault]
	}
	r.mu.RUnlock()

	cfg := base.clone()
	for key, value := range overrides {
		switch key {
		case "session_type":
			if v, ok := value.(string); ok {
				cfg.SessionType = v
			}
		case "timeout_minutes":
			if v, ok := intValue(value); ok {
				cfg.TimeoutMinutes = v
			}
		case "max_operations":
			if v, ok := intValue(value); ok {
				cfg.MaxOperations = v
			}
		case "auto_cleanup":
			if v, ok := value.(bool); ok {
				cfg.AutoCleanup = v
			}
		case "persist_state":
			if v, ok := value.(bool); ok {
				cfg.PersistState = v
			}
		case "log_level":
			if v, ok := value.(string); ok {
				cfg.LogLevel = v
			}
		case "resource_limits":
			if m, ok := value.(map[string]any); ok {
				for k, v := range m {
					cfg.ResourceLimits[k] = v
				}
			}
		case "custom_settings":
			if m, ok := value.(map[string]any); ok {
				for k, v := range m {
					cfg.CustomSettings[k] = v
				}
			}
		default:
			log.Printf("ignoring unknown config override %q for session type %q", key, sessionType)
		}
	}
	return cfg
}

// intValue coerces JSON-decoded numbers, which arrive as float64.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
