// Package batch drives submitted form images through an Extractor under a
// global concurrency cap.
//
// Submit creates one pending record per image synchronously and returns. A
// single dispatcher goroutine then admits queued tasks in submission order,
// each admission taking one slot of a counting gate of width K. A slot is
// released when its record reaches a terminal state, so whichever in-flight
// call finishes first makes room for the next pending task. The cap spans
// every batch submitted to the same Scheduler.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/fpang/ec8a-extractor/internal/metrics"
	"github.com/fpang/ec8a-extractor/internal/preview"
	"github.com/fpang/ec8a-extractor/internal/store"
	"github.com/rs/zerolog/log"
)

// DefaultConcurrency is the admission gate width when none is configured.
const DefaultConcurrency = 3

// Image is one submitted form image.
type Image struct {
	Name       string
	Data       []byte
	MIMEType   string
	CapturedAt *time.Time
}

// Extractor turns image bytes into structured fields. Implementations must be
// safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeHint string) (*form.Fields, error)
}

// ReadyChecker is implemented by extractors that can tell up front whether
// any call could succeed, for example because a credential is missing.
type ReadyChecker interface {
	Ready() error
}

// Previewer builds the preview handle owned by a new record.
type Previewer func(img Image) (store.Preview, error)

func memoryPreview(img Image) (store.Preview, error) {
	return preview.NewMemory(img.Data, img.MIMEType), nil
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConcurrency sets K, the number of records allowed in processing at once.
// Values below 1 are ignored.
func WithConcurrency(k int) Option {
	return func(s *Scheduler) {
		if k > 0 {
			s.concurrency = k
		}
	}
}

// WithTransform rewrites image bytes right before the extraction call.
func WithTransform(t preview.Transform) Option {
	return func(s *Scheduler) { s.transform = t }
}

// WithPreviewer replaces the default in-memory preview handles.
func WithPreviewer(p Previewer) Option {
	return func(s *Scheduler) {
		if p != nil {
			s.previewer = p
		}
	}
}

// WithTimeout bounds each extraction call. Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// task pairs a record id with the image it was created from.
type task struct {
	id    string
	image Image
}

// Scheduler owns the admission gate and the pending task queue.
type Scheduler struct {
	store       *store.Store
	port        Extractor
	concurrency int
	transform   preview.Transform
	previewer   Previewer
	timeout     time.Duration
	metrics     *metrics.Metrics

	gate *gate
	wake chan struct{}
	done chan struct{}

	submitMu sync.Mutex

	mu          sync.Mutex
	queue       []task
	pending     int
	outstanding int
	idle        chan struct{}
	closed      bool
}

// New starts a scheduler writing into st and calling port.
func New(st *store.Store, port Extractor, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:       st,
		port:        port,
		concurrency: DefaultConcurrency,
		previewer:   memoryPreview,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		idle:        make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	close(s.idle)
	s.gate = newGate(s.concurrency)

	go s.dispatch()

	log.Debug().
		Int("concurrency", s.concurrency).
		Dur("timeout", s.timeout).
		Bool("transform", s.transform != nil).
		Msg("Batch scheduler started")
	return s
}

// Concurrency returns K.
func (s *Scheduler) Concurrency() int { return s.gate.width() }

// Submit records every image as pending and queues it for extraction. It never
// waits on extraction. The returned ids follow the order of images.
//
// A *SubmissionError is returned, and no record is created, when the scheduler
// is closed or the extractor reports it cannot run.
func (s *Scheduler) Submit(images []Image) ([]string, error) {
	if s.isClosed() {
		return nil, &SubmissionError{Message: "batch rejected", Err: ErrClosed}
	}
	if len(images) == 0 {
		return nil, nil
	}
	if rc, ok := s.port.(ReadyChecker); ok {
		if err := rc.Ready(); err != nil {
			log.Error().Err(err).Int("images", len(images)).Msg("Extractor not ready, batch rejected")
			return nil, &SubmissionError{Message: "extractor not ready", Err: err}
		}
	}

	batchID, err := newID("batch-")
	if err != nil {
		return nil, &SubmissionError{Message: "batch rejected", Err: err}
	}

	submittedAt := time.Now()
	records := make([]store.Record, 0, len(images))
	tasks := make([]task, 0, len(images))
	for _, img := range images {
		id, err := newID("")
		var p store.Preview
		if err == nil {
			p, err = s.previewer(img)
		}
		if err != nil {
			releaseAll(records)
			return nil, &SubmissionError{Message: fmt.Sprintf("failed to prepare %s", img.Name), Err: err}
		}
		records = append(records, store.Record{
			ID:          id,
			BatchID:     batchID,
			SourceName:  img.Name,
			MIMEType:    img.MIMEType,
			Size:        int64(len(img.Data)),
			Status:      store.StatusPending,
			SubmittedAt: submittedAt,
			CapturedAt:  img.CapturedAt,
			Preview:     p,
		})
		tasks = append(tasks, task{id: id, image: img})
	}

	// submitMu keeps store insertion order and queue order identical across
	// concurrent submissions. s.mu is not held across store.Add because
	// observers run synchronously and may call back into the scheduler.
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	// Reserve under the lock so Close cannot finish between the check and the enqueue.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		releaseAll(records)
		return nil, &SubmissionError{Message: "batch rejected", Err: ErrClosed}
	}
	if s.outstanding == 0 {
		s.idle = make(chan struct{})
	}
	s.outstanding += len(tasks)
	s.pending += len(tasks)
	s.mu.Unlock()

	s.store.Add(records...)
	s.metrics.Submitted(len(tasks))

	s.mu.Lock()
	s.queue = append(s.queue, tasks...)
	s.mu.Unlock()
	s.signal()

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.id
	}

	log.Info().
		Str("batch_id", batchID).
		Int("images", len(ids)).
		Int("concurrency", s.gate.width()).
		Msg("Batch submitted")
	return ids, nil
}

// Busy reports whether any submitted record has not yet settled.
func (s *Scheduler) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outstanding > 0
}

// InFlight returns the number of records holding an admission slot.
func (s *Scheduler) InFlight() int { return s.gate.inFlight() }

// Pending returns the number of records waiting for admission.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Wait blocks until every submitted record has settled or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting batches and waits for outstanding work to settle.
// In-flight calls are never cancelled; if ctx ends first they keep running
// and their results still land in the store.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if !already {
		s.signal()
		log.Debug().Msg("Batch scheduler closing")
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Wait(ctx)
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest queued task. It returns false once the scheduler is
// closed and nothing remains to admit.
func (s *Scheduler) next() (task, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			t := s.queue[0]
			s.queue[0] = task{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return t, true
		}
		finished := s.closed && s.pending == 0
		s.mu.Unlock()
		if finished {
			return task{}, false
		}
		<-s.wake
	}
}

func (s *Scheduler) dispatch() {
	defer close(s.done)
	for {
		t, ok := s.next()
		if !ok {
			return
		}

		s.gate.acquire()

		s.mu.Lock()
		s.pending--
		s.mu.Unlock()

		// The record may have been deleted while it waited; its slot goes straight back.
		if !s.store.Update(t.id, store.MarkProcessing()) {
			s.gate.release()
			s.metrics.Skipped()
			s.settle()
			log.Debug().Str("id", t.id).Str("filename", t.image.Name).Msg("Record removed before admission, skipping")
			continue
		}
		s.metrics.Admitted()

		go s.run(t)
	}
}

// run performs one extraction and writes its terminal state. Failures of any
// kind stay inside the record.
func (s *Scheduler) run(t task) {
	start := time.Now()
	defer func() {
		s.gate.release()
		s.settle()
	}()

	fields, err := s.extract(t)
	elapsed := time.Since(start)

	if err != nil {
		s.metrics.Finished(metrics.ResultError, elapsed)
		applied := s.store.Update(t.id, store.MarkError(err.Error()))
		log.Warn().
			Err(err).
			Str("id", t.id).
			Str("filename", t.image.Name).
			Dur("duration", elapsed).
			Bool("record_present", applied).
			Msg("Extraction failed")
		return
	}

	s.metrics.Finished(metrics.ResultSuccess, elapsed)
	applied := s.store.Update(t.id, store.MarkSuccess(fields))
	log.Info().
		Str("id", t.id).
		Str("filename", t.image.Name).
		Dur("duration", elapsed).
		Bool("record_present", applied).
		Msg("Extraction succeeded")
}

func (s *Scheduler) extract(t task) (fields *form.Fields, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("id", t.id).Msg("Extractor panicked")
			fields, err = nil, fmt.Errorf("extractor panic: %v", r)
		}
	}()

	data, mimeType := t.image.Data, t.image.MIMEType
	if s.transform != nil {
		data, mimeType, err = s.transform(data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare image: %w", err)
		}
	}

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	fields, err = s.port.Extract(ctx, data, mimeType)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("extractor returned no fields")
	}
	return fields, nil
}

func (s *Scheduler) settle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outstanding--
	if s.outstanding == 0 {
		close(s.idle)
	}
}

func releaseAll(records []store.Record) {
	for _, r := range records {
		if r.Preview != nil {
			r.Preview.Release()
		}
	}
}
