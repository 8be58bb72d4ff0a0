package session

import (
	"fmt"
)

// allocatorFunc performs type-specific resource allocation for a newly
// created session.
type allocatorFunc func(s *Session) error

// allocatorTable maps session types to their allocators. Unknown types get a
// no-op allocator rather than silently falling through.
type allocatorTable struct {
	byType map[string]allocatorFunc
}

func newAllocatorTable() *allocatorTable {
	return &allocatorTable{
		byType: map[string]allocatorFunc{
			TypeAPIWorkflow: func(s *Session) error {
				s.allocate("api_pool")
				s.SetState("api_clients", map[string]any{})
				return nil
			},
			TypeFileProcessing: func(s *Session) error {
				s.allocate("file_handlers")
				s.SetState("file_queue", []any{})
				s.SetState("processed_files", []any{})
				return nil
			},
			TypeBatchOperation: func(s *Session) error {
				s.allocate("batch_processor")
				s.SetState("batch_queue", []any{})
				s.SetState("batch_results", []any{})
				return nil
			},
		},
	}
}

// register installs an allocator for a session type. The last registration
// wins.
func (t *allocatorTable) register(sessionType string, fn allocatorFunc) {
	t.byType[sessionType] = fn
}

// allocate claims the baseline resource tags every session holds, then runs
// the type-specific allocator if one is registered.
func (t *allocatorTable) allocate(s *Session) error {
	s.allocate("memory")
	s.allocate("logging")
	if s.Config.LogLevel != "" {
		s.allocate(fmt.Sprintf("logger_%s", s.ID))
	}

	fn, ok := t.byType[s.Type]
	if !ok {
		return nil
	}
	return fn(s)
}
