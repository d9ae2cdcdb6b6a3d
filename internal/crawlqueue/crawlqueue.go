// Package crawlqueue serializes crawl-and-analyze jobs one at a time
// across all users (spec.md §4.7, §5: the engine process is not safe to
// run in parallel, so at most one pipeline runs at any instant) and
// broadcasts queue position and progress to whatever SSE clients are
// attached to a job.
//
// The blocking-queue discipline is grounded on freeeve-chessgraph's
// internal/eval/queue.go (sync.Mutex + sync.Cond, a single dequeue loop
// feeding one worker); this package generalizes that from "one eval
// request in, one eval result out" to "one job in, a stream of typed SSE
// events out over the job's lifetime," composed with the teacher
// (CFFinch62-GoBG) pkg/api/sse.go pattern of a progress callback writing
// SSE events as work proceeds.
package crawlqueue

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Payload carries what a crawl job needs to run: which user's store to
// write into, the source-site credentials to crawl with, and the window
// of days to fetch.
type Payload struct {
	StorageKey string
	Username   string
	Password   string
	Days       int
}

// EventKind tags the four SSE event shapes spec.md §6 names.
type EventKind string

const (
	EventQueue    EventKind = "queue"
	EventProgress EventKind = "progress"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

type QueuePayload struct {
	AheadCount int `json:"aheadCount"`
}

// ProgressPayload extends spec.md §6's shape with positionsSkipped, the
// SPEC_FULL.md §4.8 supplement ported from analyze_match.py's running
// tally of positions skipped (engine unavailable, no legal move, below
// threshold).
type ProgressPayload struct {
	Phase            string `json:"phase"`
	MatchesTotal     int    `json:"matchesTotal"`
	ProcessedMatches int    `json:"processedMatches"`
	QuizzesAdded     int    `json:"quizzesAdded"`
	PositionsSkipped int    `json:"positionsSkipped"`
	LastPositionID   string `json:"lastPositionId,omitempty"`
}

type DonePayload struct {
	Added        int `json:"added"`
	Total        int `json:"total"`
	MatchesTotal int `json:"matchesTotal"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// Event is the tagged union of SSE payloads a job emits over its life.
type Event struct {
	Kind     EventKind
	Queue    *QueuePayload
	Progress *ProgressPayload
	Done     *DonePayload
	Error    *ErrorPayload
}

// Job is one crawl-and-analyze run and its listener set.
type Job struct {
	ID      string
	Payload Payload

	mu        sync.Mutex
	status    Status
	listeners map[int]chan Event
	nextID    int
	lastEvent Event
}

func newJob(payload Payload) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Payload:   payload,
		status:    StatusQueued,
		listeners: make(map[int]chan Event),
	}
}

// Status returns the job's current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Subscribe attaches a listener, synchronously replaying the job's most
// recent event (queue, progress, done, or error) per spec.md §4.7's attach
// contract, then streaming subsequent events. unsubscribe must be called
// when the client disconnects; the job itself keeps running regardless
// (spec.md §5: "When a listener disconnects, its stream is dropped but the
// job continues").
func (j *Job) Subscribe() (events <-chan Event, unsubscribe func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	ch := make(chan Event, 16)
	id := j.nextID
	j.nextID++
	j.listeners[id] = ch

	if j.lastEvent.Kind != "" {
		ch <- j.lastEvent
	}

	unsubscribe = func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if c, ok := j.listeners[id]; ok {
			delete(j.listeners, id)
			close(c)
		}
	}
	return ch, unsubscribe
}

func (j *Job) broadcast(e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastEvent = e
	for _, ch := range j.listeners {
		select {
		case ch <- e:
		default:
			// A slow listener drops an intermediate event rather than
			// blocking the job; Subscribe's synchronous replay and the
			// eventual done/error event keep it from getting stuck.
		}
	}
}

func (j *Job) closeListeners() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for id, ch := range j.listeners {
		delete(j.listeners, id)
		close(ch)
	}
}

// Runner executes one job's work, calling emit for each progress event as
// it happens. Returning an error is reported as an `error` SSE event;
// returning (added, total, matchesTotal, nil) is reported as `done`.
type Runner func(ctx context.Context, job *Job, emit func(ProgressPayload)) (added, total, matchesTotal int, err error)

// Queue is the single-slot FIFO job queue.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Job
	current *Job
	byID    map[string]*Job
	runner  Runner
	log     zerolog.Logger
}

func NewQueue(runner Runner, log zerolog.Logger) *Queue {
	q := &Queue{
		byID:   make(map[string]*Job),
		runner: runner,
		log:    log,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a new job to the queue and returns it along with its
// initial ahead-count.
func (q *Queue) Enqueue(payload Payload) (*Job, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := newJob(payload)
	q.pending = append(q.pending, job)
	q.byID[job.ID] = job

	q.broadcastAheadCountsLocked()
	q.cond.Signal()

	return job, aheadCount(len(q.pending)-1, q.current != nil)
}

// Job looks up a job by id, whether pending, running, or finished (finished
// jobs are retained in byID for the lifetime of the process so a late
// subscriber can still replay the final event).
func (q *Queue) Job(id string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.byID[id]
	return j, ok
}

func aheadCount(index int, running bool) int {
	n := index
	if running {
		n++
	}
	return n
}

// broadcastAheadCountsLocked recomputes and emits each pending job's
// current ahead-count. Must be called with q.mu held.
func (q *Queue) broadcastAheadCountsLocked() {
	running := q.current != nil
	for i, job := range q.pending {
		job.broadcast(Event{Kind: EventQueue, Queue: &QueuePayload{AheadCount: aheadCount(i, running)}})
	}
}

// Start runs the dequeue loop until ctx is canceled. Call once, typically
// from main, in its own goroutine.
func (q *Queue) Start(ctx context.Context) {
	for {
		job := q.dequeue(ctx)
		if job == nil {
			return // ctx canceled
		}
		q.runJob(ctx, job)
	}
}

func (q *Queue) dequeue(ctx context.Context) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if len(q.pending) > 0 {
			job := q.pending[0]
			q.pending = q.pending[1:]
			q.current = job
			q.broadcastAheadCountsLocked()
			return job
		}

		done := make(chan struct{})
		go func() {
			<-ctx.Done()
			q.cond.Broadcast()
			close(done)
		}()
		q.cond.Wait()
		select {
		case <-done:
			return nil
		default:
		}
	}
}

func (q *Queue) runJob(ctx context.Context, job *Job) {
	job.mu.Lock()
	job.status = StatusRunning
	job.mu.Unlock()

	emit := func(p ProgressPayload) {
		job.broadcast(Event{Kind: EventProgress, Progress: &p})
	}

	added, total, matchesTotal, err := q.runner(ctx, job, emit)

	q.mu.Lock()
	q.current = nil
	q.broadcastAheadCountsLocked()
	q.mu.Unlock()

	job.mu.Lock()
	if err != nil {
		job.status = StatusError
	} else {
		job.status = StatusDone
	}
	job.mu.Unlock()

	if err != nil {
		q.log.Error().Err(err).Str("job_id", job.ID).Msg("crawl job failed")
		job.broadcast(Event{Kind: EventError, Error: &ErrorPayload{Error: err.Error()}})
	} else {
		job.broadcast(Event{Kind: EventDone, Done: &DonePayload{Added: added, Total: total, MatchesTotal: matchesTotal}})
	}
	job.closeListeners()
}
