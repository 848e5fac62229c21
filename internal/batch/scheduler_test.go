package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/fpang/ec8a-extractor/internal/store"
)

type result struct {
	fields *form.Fields
	err    error
}

type call struct {
	name  string
	ctx   context.Context
	reply chan result
}

// blockingExtractor hands every call to the test and waits for a reply.
type blockingExtractor struct {
	calls chan call
}

func newBlockingExtractor() *blockingExtractor {
	return &blockingExtractor{calls: make(chan call, 16)}
}

func (b *blockingExtractor) Extract(ctx context.Context, data []byte, _ string) (*form.Fields, error) {
	c := call{name: string(data), ctx: ctx, reply: make(chan result, 1)}
	b.calls <- c
	r := <-c.reply
	return r.fields, r.err
}

func (b *blockingExtractor) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-b.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for extraction call")
		return call{}
	}
}

func (b *blockingExtractor) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-b.calls:
		t.Fatalf("unexpected extraction call for %q", c.name)
	case <-time.After(50 * time.Millisecond):
	}
}

type funcExtractor func(ctx context.Context, data []byte, mime string) (*form.Fields, error)

func (f funcExtractor) Extract(ctx context.Context, data []byte, mime string) (*form.Fields, error) {
	return f(ctx, data, mime)
}

type notReady struct{ funcExtractor }

func (notReady) Ready() error { return errors.New("no API key configured") }

func images(names ...string) []Image {
	out := make([]Image, len(names))
	for i, n := range names {
		out[i] = Image{Name: "form-" + n + ".jpg", Data: []byte(n), MIMEType: "image/jpeg"}
	}
	return out
}

func success(votes int64) result {
	f := form.NewFields()
	f.Counts["totalValidVotes"] = votes
	return result{fields: f}
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

// processingWatcher records the highest number of processing records ever
// visible in the store.
func processingWatcher(st *store.Store) func() int {
	var mu sync.Mutex
	peak := 0
	st.Observe(func(store.Change) {
		n := st.Counts()[store.StatusProcessing]
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
	})
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return peak
	}
}

func TestFirstCompletionAdmission(t *testing.T) {
	st := store.New()
	peak := processingWatcher(st)
	port := newBlockingExtractor()
	s := New(st, port, WithConcurrency(3))

	ids, err := s.Submit(images("1", "2", "3", "4", "5"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	byName := map[string]string{}
	for i, id := range ids {
		byName[fmt.Sprint(i+1)] = id
	}

	calls := map[string]call{}
	for range 3 {
		c := port.next(t)
		calls[c.name] = c
	}
	port.expectNoCall(t)

	for _, n := range []string{"1", "2", "3"} {
		if _, ok := calls[n]; !ok {
			t.Fatalf("image %s not admitted first", n)
		}
	}
	for _, n := range []string{"4", "5"} {
		r, _ := st.Get(byName[n])
		if r.Status != store.StatusPending {
			t.Errorf("image %s status = %q, want pending", n, r.Status)
		}
	}
	if got := st.Counts()[store.StatusProcessing]; got != 3 {
		t.Fatalf("processing when #2 resolves = %d, want 3", got)
	}
	if s.InFlight() != 3 || s.Pending() != 2 {
		t.Errorf("InFlight/Pending = %d/%d, want 3/2", s.InFlight(), s.Pending())
	}

	// #2 resolves first and frees the slot for #4 while #1 and #3 are still out.
	calls["2"].reply <- success(10)
	c4 := port.next(t)
	if c4.name != "4" {
		t.Fatalf("admitted %q after #2 resolved, want 4", c4.name)
	}

	calls["1"].reply <- result{err: errors.New("model returned garbage")}
	c5 := port.next(t)
	if c5.name != "5" {
		t.Fatalf("admitted %q after #1 failed, want 5", c5.name)
	}

	calls["3"].reply <- success(30)
	c4.reply <- success(40)
	c5.reply <- success(50)
	waitIdle(t, s)

	for n, id := range byName {
		r, ok := st.Get(id)
		if !ok {
			t.Fatalf("record %s missing", n)
		}
		if n == "1" {
			if r.Status != store.StatusError || !strings.Contains(r.Error, "garbage") {
				t.Errorf("#1 = %q %q, want error with captured message", r.Status, r.Error)
			}
			continue
		}
		if r.Status != store.StatusSuccess || r.Result == nil {
			t.Errorf("#%s status = %q, want success", n, r.Status)
		}
	}
	if p := peak(); p > 3 {
		t.Errorf("peak processing = %d, want <= 3", p)
	}
	if s.Busy() {
		t.Error("Busy() = true after all records settled")
	}
}

func TestGlobalCapAcrossBatches(t *testing.T) {
	st := store.New()
	peak := processingWatcher(st)

	var mu sync.Mutex
	var admitted []string
	st.Observe(func(c store.Change) {
		if c.Kind == store.ChangeUpdated && c.Record.Status == store.StatusProcessing {
			mu.Lock()
			admitted = append(admitted, c.Record.SourceName)
			mu.Unlock()
		}
	})

	var active, maxActive atomic.Int32
	port := funcExtractor(func(ctx context.Context, data []byte, _ string) (*form.Fields, error) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return form.NewFields(), nil
	})
	s := New(st, port, WithConcurrency(2))

	if _, err := s.Submit(images("a1", "a2", "a3")); err != nil {
		t.Fatalf("Submit a: %v", err)
	}
	if _, err := s.Submit(images("b1", "b2", "b3")); err != nil {
		t.Fatalf("Submit b: %v", err)
	}
	waitIdle(t, s)

	if m := maxActive.Load(); m > 2 {
		t.Errorf("max concurrent calls = %d, want <= 2", m)
	}
	if p := peak(); p > 2 {
		t.Errorf("peak processing = %d, want <= 2", p)
	}
	want := "form-a1.jpg form-a2.jpg form-a3.jpg form-b1.jpg form-b2.jpg form-b3.jpg"
	if got := strings.Join(admitted, " "); got != want {
		t.Errorf("admission order = %s, want %s", got, want)
	}
	if c := st.Counts(); c[store.StatusSuccess] != 6 {
		t.Errorf("successes = %d, want 6", c[store.StatusSuccess])
	}
}

func TestConcurrentSubmitsAdmitInStoreOrder(t *testing.T) {
	st := store.New()

	addedA := make(chan struct{})
	resume := make(chan struct{})
	var mu sync.Mutex
	var admitted []string
	st.Observe(func(c store.Change) {
		switch {
		case c.Kind == store.ChangeAdded && c.Record.SourceName == "form-a1.jpg":
			// Stall batch a between inserting its records and queueing its tasks.
			close(addedA)
			<-resume
		case c.Kind == store.ChangeUpdated && c.Record.Status == store.StatusProcessing:
			mu.Lock()
			admitted = append(admitted, c.Record.SourceName)
			mu.Unlock()
		}
	})

	port := funcExtractor(func(context.Context, []byte, string) (*form.Fields, error) {
		return form.NewFields(), nil
	})
	s := New(st, port, WithConcurrency(1))

	errs := make(chan error, 2)
	go func() {
		_, err := s.Submit(images("a1"))
		errs <- err
	}()
	select {
	case <-addedA:
	case <-time.After(2 * time.Second):
		t.Fatal("batch a never reached the store")
	}

	go func() {
		_, err := s.Submit(images("b1"))
		errs <- err
	}()
	// Give batch b the chance to overtake batch a.
	time.Sleep(50 * time.Millisecond)
	close(resume)

	for range 2 {
		if err := <-errs; err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	waitIdle(t, s)

	var stored []string
	for _, r := range st.Snapshot() {
		stored = append(stored, r.SourceName)
	}
	mu.Lock()
	defer mu.Unlock()
	if got, want := strings.Join(stored, ","), "form-a1.jpg,form-b1.jpg"; got != want {
		t.Errorf("store order = %s, want %s", got, want)
	}
	if got, want := strings.Join(admitted, ","), "form-a1.jpg,form-b1.jpg"; got != want {
		t.Errorf("admission order = %s, want %s", got, want)
	}
}

func TestDeleteDuringProcessing(t *testing.T) {
	st := store.New()
	port := newBlockingExtractor()
	s := New(st, port, WithConcurrency(1))

	ids, err := s.Submit(images("1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c := port.next(t)

	rec, _ := st.Get(ids[0])
	if !st.Remove(ids[0]) {
		t.Fatal("Remove = false")
	}
	if _, err := rec.Preview.Open(); err == nil {
		t.Error("preview still readable after Remove")
	}

	c.reply <- success(7)
	waitIdle(t, s)

	if st.Len() != 0 {
		t.Errorf("Len() = %d, want 0", st.Len())
	}
	if _, ok := st.Get(ids[0]); ok {
		t.Error("deleted record reappeared")
	}
	if s.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0", s.InFlight())
	}
}

func TestDeletedPendingRecordIsSkipped(t *testing.T) {
	st := store.New()
	port := newBlockingExtractor()
	s := New(st, port, WithConcurrency(1))

	ids, err := s.Submit(images("1", "2"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	first := port.next(t)
	st.Remove(ids[1])

	first.reply <- success(1)
	waitIdle(t, s)
	port.expectNoCall(t)

	if st.Len() != 1 {
		t.Errorf("Len() = %d, want 1", st.Len())
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
}

func TestBusyWhileOutstanding(t *testing.T) {
	st := store.New()
	port := newBlockingExtractor()
	s := New(st, port, WithConcurrency(1))

	if s.Busy() {
		t.Fatal("Busy() = true before any submission")
	}
	if _, err := s.Submit(images("1", "2")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !s.Busy() {
		t.Fatal("Busy() = false after Submit")
	}

	port.next(t).reply <- success(1)
	c := port.next(t)
	if !s.Busy() {
		t.Error("Busy() flapped to false between items")
	}
	c.reply <- success(2)
	waitIdle(t, s)
	if s.Busy() {
		t.Error("Busy() = true after drain")
	}
}

func TestSubmitZeroImages(t *testing.T) {
	st := store.New()
	s := New(st, newBlockingExtractor())

	ids, err := s.Submit(nil)
	if err != nil || len(ids) != 0 {
		t.Fatalf("Submit(nil) = %v, %v", ids, err)
	}
	if s.Busy() || st.Len() != 0 {
		t.Error("zero-image submission changed state")
	}
	waitIdle(t, s)
}

func TestSubmitRejectedWhenNotReady(t *testing.T) {
	st := store.New()
	s := New(st, notReady{})

	_, err := s.Submit(images("1", "2"))
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("Submit error = %v, want *SubmissionError", err)
	}
	if st.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after rejected submission", st.Len())
	}
	if s.Busy() {
		t.Error("Busy() = true after rejected submission")
	}
}

func TestSubmitAfterClose(t *testing.T) {
	st := store.New()
	s := New(st, newBlockingExtractor())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := s.Submit(images("1"))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
}

func TestCloseDrainsQueuedWork(t *testing.T) {
	st := store.New()
	port := funcExtractor(func(context.Context, []byte, string) (*form.Fields, error) {
		time.Sleep(2 * time.Millisecond)
		return form.NewFields(), nil
	})
	s := New(st, port, WithConcurrency(1))
	if _, err := s.Submit(images("1", "2", "3")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c := st.Counts(); c[store.StatusSuccess] != 3 {
		t.Errorf("successes after Close = %d, want 3", c[store.StatusSuccess])
	}
}

func TestFailuresStayInRecord(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		port    Extractor
		wantErr string
	}{
		{
			name: "panic",
			port: funcExtractor(func(context.Context, []byte, string) (*form.Fields, error) {
				panic("decoder exploded")
			}),
			wantErr: "decoder exploded",
		},
		{
			name: "nil fields",
			port: funcExtractor(func(context.Context, []byte, string) (*form.Fields, error) {
				return nil, nil
			}),
			wantErr: "no fields",
		},
		{
			name: "timeout",
			opts: []Option{WithTimeout(10 * time.Millisecond)},
			port: funcExtractor(func(ctx context.Context, _ []byte, _ string) (*form.Fields, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}),
			wantErr: "deadline exceeded",
		},
		{
			name: "transform",
			opts: []Option{WithTransform(func([]byte, string) ([]byte, string, error) {
				return nil, "", errors.New("corrupt jpeg")
			})},
			port: funcExtractor(func(context.Context, []byte, string) (*form.Fields, error) {
				return form.NewFields(), nil
			}),
			wantErr: "corrupt jpeg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.New()
			s := New(st, tt.port, tt.opts...)
			ids, err := s.Submit(images("1", "2"))
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			waitIdle(t, s)

			for _, id := range ids {
				r, _ := st.Get(id)
				if r.Status != store.StatusError {
					t.Errorf("status = %q, want error", r.Status)
				}
				if !strings.Contains(r.Error, tt.wantErr) {
					t.Errorf("error = %q, want it to contain %q", r.Error, tt.wantErr)
				}
				if r.Result != nil {
					t.Error("failed record carries a result")
				}
			}
		})
	}
}

func TestTransformFeedsExtractor(t *testing.T) {
	st := store.New()
	var gotMIME string
	var gotData string
	port := funcExtractor(func(_ context.Context, data []byte, mime string) (*form.Fields, error) {
		gotData, gotMIME = string(data), mime
		return form.NewFields(), nil
	})
	s := New(st, port, WithTransform(func(data []byte, _ string) ([]byte, string, error) {
		return append([]byte("small-"), data...), "image/jpeg", nil
	}))

	ids, err := s.Submit([]Image{{Name: "scan.png", Data: []byte("raw"), MIMEType: "image/png"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitIdle(t, s)

	if gotData != "small-raw" || gotMIME != "image/jpeg" {
		t.Errorf("extractor got %q %q", gotData, gotMIME)
	}
	r, _ := st.Get(ids[0])
	if r.MIMEType != "image/png" || r.Size != 3 {
		t.Errorf("record keeps original metadata, got %q %d", r.MIMEType, r.Size)
	}
}
