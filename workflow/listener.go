package workflow

import "go.uber.org/zap"

// Listener observes the lifecycle of a Context. OnNext may fire any number of
// times; exactly one of OnError or OnComplete fires unless the context is
// cancelled first, and OnCancel fires at most once.
type Listener[T any] interface {
	OnNext(item T)
	OnError(err error)
	OnComplete()
	OnCancel()
}

// ListenerFuncs adapts plain functions to Listener. Nil fields fall back to
// logging through Logger, or to no-ops when Logger is also nil.
type ListenerFuncs[T any] struct {
	Logger   *zap.Logger
	Next     func(item T)
	Error    func(err error)
	Complete func()
	Cancel   func()
}

func (l ListenerFuncs[T]) OnNext(item T) {
	if l.Next != nil {
		l.Next(item)
	}
}

func (l ListenerFuncs[T]) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
		return
	}
	if l.Logger != nil {
		l.Logger.Warn("workflow failed", zap.Error(err))
	}
}

func (l ListenerFuncs[T]) OnComplete() {
	if l.Complete != nil {
		l.Complete()
		return
	}
	if l.Logger != nil {
		l.Logger.Debug("workflow completed")
	}
}

func (l ListenerFuncs[T]) OnCancel() {
	if l.Cancel != nil {
		l.Cancel()
		return
	}
	if l.Logger != nil {
		l.Logger.Debug("workflow cancelled")
	}
}
