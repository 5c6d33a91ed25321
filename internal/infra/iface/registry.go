// Package iface implements the Interface Adapter Registry: one adapter per
// protocol mode (chat, base, embedding, reranker), each knowing its
// endpoint set and how to health-check a freshly-started backend.
package iface

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tutu-network/tutu/internal/domain"
)

// PollInterval is the cadence of functional-probe retries, matching the
// teacher's waitForServerWithFeedback polling cadence.
const PollInterval = 500 * time.Millisecond

// Registry maps a Mode to its adapter. Built at program start — adapters
// are not discovered dynamically (see SPEC_FULL.md Design Notes).
type Registry struct {
	adapters map[domain.Mode]domain.InterfaceAdapter
	client   *http.Client
}

func NewRegistry() *Registry {
	r := &Registry{
		adapters: make(map[domain.Mode]domain.InterfaceAdapter),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	r.Register(newChatAdapter(r.client))
	r.Register(newBaseAdapter(r.client))
	r.Register(newEmbeddingAdapter(r.client))
	r.Register(newRerankerAdapter(r.client))
	return r
}

func (r *Registry) Register(a domain.InterfaceAdapter) {
	r.adapters[a.Mode()] = a
}

func (r *Registry) For(mode domain.Mode) (domain.InterfaceAdapter, bool) {
	a, ok := r.adapters[mode]
	return a, ok
}

// Known reports whether mode has a registered adapter.
func (r *Registry) Known(mode domain.Mode) bool {
	_, ok := r.adapters[mode]
	return ok
}

// Validate reports whether path is acceptable for the given mode.
func (r *Registry) Validate(mode domain.Mode, path string) bool {
	a, ok := r.For(mode)
	if !ok {
		return false
	}
	return a.Validate(path)
}

// pollUntilReady polls probe at PollInterval until it returns nil, the
// deadline passes, or ctx is cancelled. This is the shared shape behind
// every built-in adapter's Health method: deadline-based, not
// sleep-and-retry-forever, per the Design Notes' re-architecture guidance. A
// zero deadline means no expiry — the caller relies on ctx alone, as the
// administrative start path does.
func pollUntilReady(ctx context.Context, deadline time.Time, probe func() error) error {
	var lastErr error
	for {
		if err := probe(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return fmt.Errorf("not ready before deadline: %w", lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(PollInterval):
		}
	}
}

func baseURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}
