package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultTimeout bounds plain reads and writes.
	DefaultTimeout = 10 * time.Second
	// PromptTimeout bounds operations that may raise a device
	// authentication prompt and therefore wait on the user.
	PromptTimeout = 30 * time.Second
)

// Vault serializes access to a secret store. Every operation is queued
// onto a single FIFO worker, because the underlying platform resource
// (the device authentication prompt) is globally exclusive; overlapping
// prompts are disallowed.
//
// Writes are best-effort: a failed Put is retried once after resetting
// the key, and abandoned if the retry fails. Reads fall back to a
// secondary store before reporting absence.
type Vault struct {
	primary  Store
	fallback Store

	defaultTimeout time.Duration
	promptTimeout  time.Duration

	queue chan func()
	done  chan struct{}
	once  sync.Once
}

// Option configures a Vault.
type Option func(*Vault)

// WithFallback sets a secondary store consulted when a read from the
// primary store fails.
func WithFallback(store Store) Option {
	return func(v *Vault) { v.fallback = store }
}

// WithDefaultTimeout overrides the plain-operation timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(v *Vault) { v.defaultTimeout = d }
}

// WithPromptTimeout overrides the prompt-class timeout.
func WithPromptTimeout(d time.Duration) Option {
	return func(v *Vault) { v.promptTimeout = d }
}

// New creates a Vault over primary and starts its worker.
func New(primary Store, opts ...Option) *Vault {
	v := &Vault{
		primary:        primary,
		defaultTimeout: DefaultTimeout,
		promptTimeout:  PromptTimeout,
		queue:          make(chan func()),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	go v.run()
	return v
}

// Shutdown stops the worker. Pending and later operations fail with
// ErrClosed.
func (v *Vault) Shutdown() {
	v.once.Do(func() { close(v.done) })
}

func (v *Vault) run() {
	for {
		select {
		case op := <-v.queue:
			op()
		case <-v.done:
			return
		}
	}
}

// do queues fn and waits for its outcome. The operation itself is
// bounded by timeout, not by ctx: once in flight it cannot be cancelled
// (a dismissed prompt must not strand the queue mid-interaction), but
// the timeout guarantees the queue keeps moving. ctx only limits how
// long the caller is willing to wait.
func (v *Vault) do(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	result := make(chan error, 1)
	op := func() {
		opCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		inner := make(chan error, 1)
		go func() { inner <- fn(opCtx) }()

		select {
		case err := <-inner:
			result <- err
		case <-opCtx.Done():
			result <- fmt.Errorf("%w (budget %s)", ErrTimeout, timeout)
		}
	}

	select {
	case v.queue <- op:
	case <-v.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-v.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get reads the secret under key. A failed device authentication prompt
// surfaces as ErrAuthGateFailed; any other primary failure falls back
// to the secondary store, and exhausted fallbacks report absence rather
// than an error.
func (v *Vault) Get(ctx context.Context, key string) (string, bool, error) {
	value, found, err := v.getFrom(ctx, v.primary, key)
	if err == nil {
		return value, found, nil
	}
	if isAuthGateFailure(err) {
		return "", false, ErrAuthGateFailed
	}
	slog.Warn("vault: primary get failed", "key", key, "err", err)

	if v.fallback == nil {
		return "", false, nil
	}

	value, found, err = v.getFrom(ctx, v.fallback, key)
	if err == nil {
		return value, found, nil
	}
	if isAuthGateFailure(err) {
		return "", false, ErrAuthGateFailed
	}
	slog.Warn("vault: fallback get failed", "key", key, "err", err)
	return "", false, nil
}

func (v *Vault) getFrom(ctx context.Context, store Store, key string) (string, bool, error) {
	var value string
	var found bool
	err := v.do(ctx, v.promptTimeout, func(opCtx context.Context) error {
		var err error
		value, found, err = store.Get(opCtx, key)
		return err
	})
	return value, found, err
}

// Put writes the secret under key. On failure the key is reset and the
// write retried once; if that also fails the write is abandoned and the
// error returned, with no secret persisted. Callers must treat
// persistence as best-effort.
func (v *Vault) Put(ctx context.Context, key, value string) error {
	put := func() error {
		return v.do(ctx, v.defaultTimeout, func(opCtx context.Context) error {
			return v.primary.Put(opCtx, key, value)
		})
	}

	err := put()
	if err == nil {
		return nil
	}
	slog.Warn("vault: put failed, resetting key", "key", key, "err", err)

	if resetErr := v.reset(ctx, key); resetErr != nil {
		slog.Warn("vault: reset after failed put failed", "key", key, "err", resetErr)
		return err
	}

	if err := put(); err != nil {
		slog.Warn("vault: put failed even after reset", "key", key, "err", err)
		return err
	}
	return nil
}

// Reset erases the secret under key.
func (v *Vault) Reset(ctx context.Context, key string) error {
	if err := v.reset(ctx, key); err != nil {
		slog.Warn("vault: reset failed", "key", key, "err", err)
		return err
	}
	return nil
}

func (v *Vault) reset(ctx context.Context, key string) error {
	return v.do(ctx, v.defaultTimeout, func(opCtx context.Context) error {
		return v.primary.Reset(opCtx, key)
	})
}

// GetJSON reads and decodes a JSON secret into out. A stored value that
// no longer parses reports ErrCorruptPayload.
func (v *Vault) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	value, found, err := v.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorruptPayload, key, err)
	}
	return true, nil
}

// PutJSON encodes value as JSON and writes it under key.
func (v *Vault) PutJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode secret %s: %w", key, err)
	}
	return v.Put(ctx, key, string(data))
}
