// Package chain implements the chain-of-responsibility engine shared by the
// marshalling pipeline, the settings sections, and the action stores.
package chain

import "sync"

// Response is a mutable value threaded through a chain. ErrorMap exposes the
// additive error map keyed by handler title.
type Response interface {
	ErrorMap() map[string][]string
}

// Handler is one node of a singly-linked chain.
type Handler[R Response] interface {
	Title() string
	SetNext(next Handler[R]) Handler[R]
	Handle(r R) R
}

// Base carries the state every handler needs. Embed it and call GoNext to
// continue the chain; returning without GoNext stops it.
type Base[R Response] struct {
	title string
	next  Handler[R]
	errs  []string
}

// NewBase returns a Base with the given title.
func NewBase[R Response](title string) Base[R] {
	return Base[R]{title: title}
}

// Title returns the handler title used as error map key.
func (b *Base[R]) Title() string {
	return b.title
}

// SetNext links next after this handler and returns next.
func (b *Base[R]) SetNext(next Handler[R]) Handler[R] {
	b.next = next
	return next
}

// AddError records a handler-local error flushed by GoNext.
func (b *Base[R]) AddError(msg string) {
	b.errs = append(b.errs, msg)
}

// GoNext merges recorded errors into r under the handler title and hands r
// to the next handler. The terminal handler returns r unchanged.
func (b *Base[R]) GoNext(r R) R {
	b.flush(r)
	if b.next != nil {
		return b.next.Handle(r)
	}
	return r
}

// Stop merges recorded errors into r without continuing the chain.
func (b *Base[R]) Stop(r R) R {
	b.flush(r)
	return r
}

func (b *Base[R]) flush(r R) {
	if len(b.errs) == 0 {
		return
	}
	if m := r.ErrorMap(); m != nil {
		m[b.title] = b.errs
	}
	b.errs = nil
}

// Step is a handler built from a transform function. The function decides
// whether to continue by calling s.GoNext.
type Step[R Response] struct {
	Base[R]
	fn func(s *Step[R], r R) R
}

// Func returns a handler that runs fn.
func Func[R Response](title string, fn func(s *Step[R], r R) R) *Step[R] {
	return &Step[R]{Base: NewBase[R](title), fn: fn}
}

// Handle implements Handler.
func (s *Step[R]) Handle(r R) R {
	return s.fn(s, r)
}

// Chain is an ordered, immutable list of handlers with one entry point.
type Chain[R Response] struct {
	mu       sync.Mutex
	handlers []Handler[R]
	pre      func(R) R
}

// New links handlers in order and returns the chain.
func New[R Response](handlers ...Handler[R]) *Chain[R] {
	for i := 0; i+1 < len(handlers); i++ {
		handlers[i].SetNext(handlers[i+1])
	}
	return &Chain[R]{handlers: handlers}
}

// WithPreStep sets a transformation applied before the first handler.
func (c *Chain[R]) WithPreStep(fn func(R) R) *Chain[R] {
	c.pre = fn
	return c
}

// Len returns the number of handlers.
func (c *Chain[R]) Len() int {
	return len(c.handlers)
}

// Handle runs r through the chain. Invocations of the same chain are
// serialized because handlers keep per-call error lists.
func (c *Chain[R]) Handle(r R) R {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pre != nil {
		r = c.pre(r)
	}
	if len(c.handlers) == 0 {
		return r
	}
	return c.handlers[0].Handle(r)
}
