package export

import (
	"fmt"
	"sync"
	"time"

	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/fpang/ec8a-extractor/internal/store"
	"github.com/rs/zerolog/log"
)

// FileName is the download name for an export created at t, e.g.
// election_data_export_2026-03-01.csv.
func FileName(t time.Time, ext string) string {
	return fmt.Sprintf("election_data_export_%s.%s", t.Format("2006-01-02"), ext)
}

// Live keeps an up-to-date CSV export of a store. The CSV is rebuilt as soon
// as a record becomes successful; any other change only marks the cache
// stale, and the next read rebuilds it.
type Live struct {
	store  *store.Store
	layout form.Layout
	stop   func()

	mu      sync.Mutex
	csv     []byte
	stats   Stats
	version uint64
	built   bool
}

// NewLive attaches a live export to st. Call Close to detach it.
func NewLive(st *store.Store, l form.Layout) *Live {
	lv := &Live{store: st, layout: l}
	lv.stop = st.Observe(lv.observe)
	return lv
}

func (lv *Live) observe(c store.Change) {
	if c.Kind != store.ChangeUpdated {
		return
	}
	if c.Record.Status == store.StatusSuccess && c.Previous.Status != store.StatusSuccess {
		lv.refresh()
	}
}

// refresh rebuilds the cache unless it already reflects the current version.
func (lv *Live) refresh() {
	lv.mu.Lock()
	defer lv.mu.Unlock()

	if lv.built && lv.version == lv.store.Version() {
		return
	}
	records, version := lv.store.SnapshotVersion()
	lv.csv = CSV(records, lv.layout)
	lv.stats = Summarize(records, lv.layout)
	lv.version = version
	lv.built = true

	log.Debug().
		Uint64("version", version).
		Int("rows", len(records)).
		Int("bytes", len(lv.csv)).
		Msg("Live export rebuilt")
}

// CSV returns the current export. The returned slice must not be modified.
func (lv *Live) CSV() []byte {
	lv.refresh()
	lv.mu.Lock()
	defer lv.mu.Unlock()
	return lv.csv
}

// Stats returns the summary matching the cached export.
func (lv *Live) Stats() Stats {
	lv.refresh()
	lv.mu.Lock()
	defer lv.mu.Unlock()
	return lv.stats
}

// Ready reports whether at least one record has succeeded, which is when the
// download is offered.
func (lv *Live) Ready() bool {
	return lv.Stats().Succeeded > 0
}

// Close detaches the live export from its store.
func (lv *Live) Close() {
	if lv.stop != nil {
		lv.stop()
	}
}
