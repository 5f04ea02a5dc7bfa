package subscriber

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// ID identifies a subscriber. For Telegram it is the chat id.
type ID int64

// Store persists the ordered subscriber list.
//
// Load returns the full list (empty, not an error, when nothing has been saved yet).
// Save replaces the full list; a failed Save must leave the previous contents intact.
type Store interface {
	Load(ctx context.Context) ([]ID, error)
	Save(ctx context.Context, ids []ID) error
}

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the set of subscribed chats, backed by a Store.
//
// All public methods are thread-safe. Register serialises its
// load-modify-save sequence so concurrent registrations never lose an id.
type Registry struct {
	store  Store
	mu     sync.Mutex
	logger Logger
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store:  store,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register adds id to the end of the list if it is not already present.
//
// Returns:
//   - bool: true only when the id was new and the list was saved
//   - error: wraps ErrStorage when the store could not be read or written
func (r *Registry) Register(ctx context.Context, id ID) (bool, error) {
	if id == 0 {
		return false, ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	if slices.Contains(ids, id) {
		return false, nil
	}

	ids = append(ids, id)
	if err := r.store.Save(ctx, ids); err != nil {
		r.logger.Error("saving subscribers failed", "id", int64(id), "error", err)
		return false, fmt.Errorf("%w: save: %w", ErrStorage, err)
	}

	r.logger.Info("subscriber registered", "id", int64(id), "count", len(ids))
	return true, nil
}

// List returns every subscriber in registration order.
func (r *Registry) List(ctx context.Context) ([]ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

// Count returns the number of subscribers.
func (r *Registry) Count(ctx context.Context) (int, error) {
	ids, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// load reads the store and drops repeated ids, keeping first occurrences.
// Caller must hold r.mu.
func (r *Registry) load(ctx context.Context) ([]ID, error) {
	ids, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Error("loading subscribers failed", "error", err)
		return nil, fmt.Errorf("%w: load: %w", ErrStorage, err)
	}

	deduped := dedupe(ids)
	if len(deduped) != len(ids) {
		r.logger.Warn("subscriber store contains duplicate ids", "stored", len(ids), "unique", len(deduped))
	}
	return deduped, nil
}

func dedupe(ids []ID) []ID {
	seen := make(map[ID]struct{}, len(ids))
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
