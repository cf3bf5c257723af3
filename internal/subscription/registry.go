package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"meal-subscription/internal/storage"
)

// Registry hands out one initialised Store per user. Each store lives under
// its own key namespace ("user:<id>:") in the shared key-value store.
type Registry struct {
	kv     storage.Store
	logger *slog.Logger
	opts   []Option

	mu        sync.Mutex
	stores    map[string]*Store
	listeners []func(userID string, d DeliveryTracking)
}

// NewRegistry creates a Registry. opts are applied to every store it creates.
func NewRegistry(kv storage.Store, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		kv:     kv,
		logger: logger,
		opts:   opts,
		stores: make(map[string]*Store),
	}
}

// OnDelivery registers fn for delivery updates of every user.
func (r *Registry) OnDelivery(fn func(userID string, d DeliveryTracking)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Get returns the user's store, creating and initialising it on first use.
func (r *Registry) Get(ctx context.Context, userID string) (*Store, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, invalid("userId", "must not be empty")
	}

	r.mu.Lock()
	s, ok := r.stores[userID]
	if !ok {
		opts := append([]Option{WithLogger(r.logger)}, r.opts...)
		opts = append(opts,
			WithOwner(userID),
			WithDeliveryListener(func(d DeliveryTracking) { r.emit(userID, d) }),
		)
		s = NewStore(storage.WithPrefix(r.kv, fmt.Sprintf("user:%s:", userID)), opts...)
		r.stores[userID] = s
	}
	r.mu.Unlock()

	if !s.Initialized() {
		if err := s.Init(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Each calls fn for every store created so far.
func (r *Registry) Each(fn func(userID string, s *Store)) {
	r.mu.Lock()
	snapshot := make(map[string]*Store, len(r.stores))
	for id, s := range r.stores {
		snapshot[id] = s
	}
	r.mu.Unlock()

	for id, s := range snapshot {
		fn(id, s)
	}
}

// Close stops pending delivery simulations of every store.
func (r *Registry) Close() {
	r.Each(func(_ string, s *Store) { s.Close() })
}

func (r *Registry) emit(userID string, d DeliveryTracking) {
	r.mu.Lock()
	listeners := append([]func(string, DeliveryTracking){}, r.listeners...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(userID, d)
	}
}
