package workflow

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subscription is a handle to an upstream producer that can be torn down when
// the consumer goes away.
type Subscription interface {
	Dispose()
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Dispose() { f() }

// StageResult tells a pipeline stage whether to keep going.
type StageResult int

const (
	// StageContinue means the context is still live.
	StageContinue StageResult = iota
	// StageCancelled means the context was cancelled; the stage should stop
	// and leave any partial result in place.
	StageCancelled
	// StageCompleted means a terminal event was already emitted.
	StageCompleted
)

// Context tracks one workflow execution: the current partial result, the
// cancelled/completed state, an optional upstream subscription, and a final
// outcome resolved exactly once. Events are forwarded to the listener given
// at construction. All methods are safe for concurrent use.
type Context[T any] struct {
	mu        sync.Mutex
	id        string
	listener  Listener[T]
	result    T
	hasResult bool
	cancelled bool
	completed bool
	sub       Subscription
	onCancel  func()

	resolveOnce sync.Once
	done        chan struct{}
	outcome     T
	err         error
}

// NewContext builds a context reporting to the given listener. A nil listener
// is replaced with one that logs terminal events through the global zap
// logger. The default cancel behavior seals the context and resolves the
// outcome with ErrCancelled; override it with SetOnCancel to complete with a
// partial result instead.
func NewContext[T any](listener Listener[T]) *Context[T] {
	if listener == nil {
		listener = ListenerFuncs[T]{Logger: zap.L()}
	}
	c := &Context[T]{
		id:       uuid.NewString(),
		listener: listener,
		done:     make(chan struct{}),
	}
	c.onCancel = func() {
		c.mu.Lock()
		c.completed = true
		c.mu.Unlock()
		var zero T
		c.resolve(zero, ErrCancelled)
	}
	return c
}

// ID is the unique identifier of this execution, for log correlation.
func (c *Context[T]) ID() string { return c.id }

// SetSubscription attaches the upstream producer feeding this context. If the
// context was already cancelled the subscription is disposed immediately.
func (c *Context[T]) SetSubscription(sub Subscription) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		if sub != nil {
			sub.Dispose()
		}
		return
	}
	c.sub = sub
	c.mu.Unlock()
}

// SetOnCancel replaces the cancel callback. The callback runs after the
// upstream subscription is disposed and the listener's OnCancel has fired; it
// may call SetResult and EmitComplete to finish with a partial result.
func (c *Context[T]) SetOnCancel(fn func()) {
	c.mu.Lock()
	c.onCancel = fn
	c.mu.Unlock()
}

// SetResult records the current result without emitting anything. Once the
// context has terminated, the stored result is sealed and further calls are
// no-ops.
func (c *Context[T]) SetResult(v T) {
	c.mu.Lock()
	if c.completed {
		c.mu.Unlock()
		return
	}
	c.result = v
	c.hasResult = true
	c.mu.Unlock()
}

// Result returns the current result and whether one was set.
func (c *Context[T]) Result() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.hasResult
}

// EmitNext forwards an item to the listener unless the context has already
// reached a terminal state.
func (c *Context[T]) EmitNext(item T) {
	c.mu.Lock()
	if c.completed || c.cancelled {
		c.mu.Unlock()
		return
	}
	l := c.listener
	c.mu.Unlock()
	l.OnNext(item)
}

// EmitError terminates the context with an error. At most one of EmitError
// and EmitComplete takes effect.
func (c *Context[T]) EmitError(err error) {
	c.mu.Lock()
	if c.completed {
		c.mu.Unlock()
		return
	}
	c.completed = true
	l := c.listener
	c.mu.Unlock()
	l.OnError(err)
	var zero T
	c.resolve(zero, err)
}

// EmitComplete terminates the context successfully, resolving the outcome
// with the current result. It still takes effect after Cancel so that a
// cancel callback can finish with a partial result.
func (c *Context[T]) EmitComplete() {
	c.mu.Lock()
	if c.completed {
		c.mu.Unlock()
		return
	}
	c.completed = true
	l := c.listener
	res := c.result
	c.mu.Unlock()
	l.OnComplete()
	c.resolve(res, nil)
}

// Cancel requests cooperative termination: the upstream subscription is
// disposed, the listener's OnCancel fires, then the cancel callback runs.
// Calling Cancel on a finished or already cancelled context does nothing.
func (c *Context[T]) Cancel() {
	c.mu.Lock()
	if c.completed || c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	sub := c.sub
	cb := c.onCancel
	l := c.listener
	c.mu.Unlock()
	if sub != nil {
		sub.Dispose()
	}
	l.OnCancel()
	if cb != nil {
		cb()
	}
}

// Cancelled reports whether Cancel has been called.
func (c *Context[T]) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// CheckCompleted is the cooperative cancellation point pipeline stages call
// between steps.
func (c *Context[T]) CheckCompleted() StageResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.cancelled:
		return StageCancelled
	case c.completed:
		return StageCompleted
	default:
		return StageContinue
	}
}

func (c *Context[T]) resolve(v T, err error) {
	c.resolveOnce.Do(func() {
		c.outcome = v
		c.err = err
		close(c.done)
	})
}

// Done is closed when the outcome is resolved.
func (c *Context[T]) Done() <-chan struct{} { return c.done }

// Get blocks until the outcome is resolved or ctx expires. A cancelled
// context yields ErrCancelled.
func (c *Context[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.outcome, c.err
	case <-ctx.Done():
		var zero T
		return zero, clientErr(ctx.Err())
	}
}
