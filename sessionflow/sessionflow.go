// Package sessionflow provides the outer concurrency discipline in front
// of the pipeline runner (spec §4.7): a per-conversation FIFO queue and
// busy flag, and a bounded shared worker pool so unrelated conversations
// run in parallel while requests within one conversation stay strictly
// serial. The teacher has no analogue — it serves one request per HTTP
// call with no queuing — so this generalizes from its mutex-guarded
// shared-map idiom instead (circuitbreaker.HealthManager's healthMap,
// proxy/transform.go's globalSessionCache).
package sessionflow

import (
	"context"
	"sync"

	"llmproxy/apierror"
	"llmproxy/metrics"
)

// Task is the unit of work submitted for a conversation: an arbitrary
// pipeline invocation closure, given the execution context it should run
// under.
type Task func(ctx context.Context) (interface{}, error)

// Future is the handle returned by Submit: the eventual result of a
// submitted task, plus cancellation while it's still queued.
type Future struct {
	done   chan struct{}
	result interface{}
	err    error

	mu        sync.Mutex
	completed bool

	controller      *Controller
	conversationKey string
}

// Wait blocks until the task completes or ctx is done, whichever comes
// first.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel removes the task from its conversation's queue if it hasn't
// started yet. A task already dispatched to a worker is unaffected here —
// cancelling its execution context (the ctx passed to Submit) is what
// propagates cancellation into an in-flight pipeline run, per spec §4.7/§5.
func (f *Future) Cancel() bool {
	return f.controller.cancelQueued(f)
}

func (f *Future) complete(result interface{}, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed {
		return
	}
	f.completed = true
	f.result = result
	f.err = err
	close(f.done)
}

type task struct {
	ctx    context.Context
	fn     Task
	future *Future
}

type conversationState struct {
	queue []*task
	busy  bool
}

// Controller is the session-flow scheduler: one FIFO+busy-flag state per
// conversation key, dispatching onto a bounded shared worker pool.
// Different conversations execute independently and in parallel up to the
// pool's bound; requests within one conversation run strictly in
// submission order.
type Controller struct {
	mu            sync.Mutex
	conversations map[string]*conversationState
	workers       chan struct{}
	queuedTotal   int
}

// New builds a Controller with workerPoolSize concurrent worker slots
// shared across all conversations.
func New(workerPoolSize int) *Controller {
	if workerPoolSize < 1 {
		workerPoolSize = 1
	}
	return &Controller{
		conversations: make(map[string]*conversationState),
		workers:       make(chan struct{}, workerPoolSize),
	}
}

// Submit enqueues fn under conversationKey. If the conversation is idle,
// fn is handed to a worker immediately (subject to pool availability);
// otherwise it joins the conversation's FIFO queue behind whatever is
// currently running or already queued.
func (c *Controller) Submit(ctx context.Context, conversationKey string, fn Task) *Future {
	future := &Future{done: make(chan struct{}), controller: c, conversationKey: conversationKey}
	t := &task{ctx: ctx, fn: fn, future: future}

	c.mu.Lock()
	state, ok := c.conversations[conversationKey]
	if !ok {
		state = &conversationState{}
		c.conversations[conversationKey] = state
	}

	if !state.busy {
		state.busy = true
		c.mu.Unlock()
		c.dispatch(conversationKey, t)
		return future
	}

	state.queue = append(state.queue, t)
	c.queuedTotal++
	metrics.ConversationQueueDepth.Set(float64(c.queuedTotal))
	c.mu.Unlock()
	return future
}

// cancelQueued removes future's task from its conversation's queue, if
// it's still there, and completes the future with a cancelled error.
func (c *Controller) cancelQueued(future *Future) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.conversations[future.conversationKey]
	if !ok {
		return false
	}
	for i, t := range state.queue {
		if t.future != future {
			continue
		}
		state.queue = append(state.queue[:i], state.queue[i+1:]...)
		c.queuedTotal--
		metrics.ConversationQueueDepth.Set(float64(c.queuedTotal))
		future.complete(nil, apierror.New(apierror.TypeCancelled, "request cancelled while queued"))
		return true
	}
	return false
}

// dispatch runs t on a worker goroutine, blocking for a free pool slot if
// the pool is saturated. The conversation's busy flag stays set for the
// whole call, including the wait for a free slot, so intra-conversation
// order is preserved regardless of pool contention.
func (c *Controller) dispatch(conversationKey string, t *task) {
	go func() {
		c.workers <- struct{}{}
		metrics.WorkersActive.Inc()

		var result interface{}
		var err error
		if t.ctx.Err() != nil {
			err = t.ctx.Err()
		} else {
			result, err = t.fn(t.ctx)
		}

		<-c.workers
		metrics.WorkersActive.Dec()

		t.future.complete(result, err)
		c.onTaskComplete(conversationKey)
	}()
}

// onTaskComplete dequeues the next task for conversationKey, if any, and
// dispatches it; otherwise clears the conversation's busy flag.
func (c *Controller) onTaskComplete(conversationKey string) {
	c.mu.Lock()
	state, ok := c.conversations[conversationKey]
	if !ok {
		c.mu.Unlock()
		return
	}

	if len(state.queue) == 0 {
		state.busy = false
		c.mu.Unlock()
		return
	}

	next := state.queue[0]
	state.queue = state.queue[1:]
	c.queuedTotal--
	metrics.ConversationQueueDepth.Set(float64(c.queuedTotal))
	c.mu.Unlock()

	c.dispatch(conversationKey, next)
}

// QueueDepth returns the number of requests currently queued (not yet
// dispatched to a worker) for conversationKey.
func (c *Controller) QueueDepth(conversationKey string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.conversations[conversationKey]
	if !ok {
		return 0
	}
	return len(state.queue)
}
