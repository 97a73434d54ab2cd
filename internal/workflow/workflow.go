package workflow

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"labelbot/internal/domain"
	"labelbot/internal/labeling"
	"labelbot/internal/metrics"
	"labelbot/internal/storage/filestore"
)

var (
	ErrSampleNotFound = errors.New("sample not found")
	ErrNoBatches      = errors.New("no batches to upload")
	ErrInvalidLabel   = errors.New("invalid label")
)

// UploadError reports the batch that made an upload fail. Nothing from the
// upload is persisted when it is returned.
type UploadError struct {
	File string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("malformed batch %s: %v", e.File, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Batch is one uploaded file.
type Batch struct {
	Name string
	Data []byte
}

type UploadResult struct {
	File       string // batch file written under the data dir, empty when nothing was added
	BatchID    string
	Added      int
	FirstIndex int
	Total      int
}

// Auditor receives a history of workflow mutations.
type Auditor interface {
	RecordUpload(fileName string, sampleCount, firstIndex int, by string, at time.Time) (string, error)
	RecordPartition(numLabelers, totalSamples int, by string, at time.Time) error
	RecordLabel(index int, label domain.Label, labeler, actor string, at time.Time) error
	RecordReset(by string, removedFiles int, at time.Time) error
}

// Recorder receives metric observations.
type Recorder interface {
	LabelSet(label domain.Label)
	LabelCleared()
	Uploaded(samples, total int)
	Partitioned()
	Reset()
	ObserveProgress(total int, progress []domain.Progress)
}

// State is the full in-memory workflow state.
type State struct {
	Samples     []domain.Sample
	Assignments domain.AssignmentMap
	Ledger      labeling.Ledger
	PolicyImage string
}

type Option func(*Workflow)

func WithAuditor(a Auditor) Option {
	return func(w *Workflow) { w.audit = a }
}

func WithRecorder(r Recorder) Option {
	return func(w *Workflow) {
		if r != nil {
			w.metrics = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// WithLocation sets the zone used for ledger timestamps and file names.
func WithLocation(loc *time.Location) Option {
	return func(w *Workflow) {
		if loc != nil {
			w.loc = loc
		}
	}
}

// Workflow owns the labeling state and persists it through a file store.
// Operations are serialized; each one runs to completion before the next.
type Workflow struct {
	mu      sync.Mutex
	store   *filestore.Store
	state   State
	audit   Auditor
	metrics Recorder
	now     func() time.Time
	loc     *time.Location
}

// Open loads the persisted state. Missing files mean empty state.
func Open(store *filestore.Store, opts ...Option) (*Workflow, error) {
	w := &Workflow{
		store:   store,
		metrics: metrics.NewNop(),
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(w)
	}

	samples, err := store.LoadSamples()
	if err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}
	assignments, err := store.LoadAssignments()
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	ledger, err := store.LoadLedger()
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	w.state = State{
		Samples:     samples,
		Assignments: assignments,
		Ledger:      labeling.Ledger(ledger),
	}
	if p, ok := store.PolicyImagePath(); ok {
		w.state.PolicyImage = p
	}
	w.observeProgress()
	log.Printf("Workflow loaded: samples=%d labelers=%d labeled=%d", len(samples), len(assignments), len(ledger))
	return w, nil
}

func (w *Workflow) timestamp() time.Time {
	return w.now().In(w.loc)
}

// Upload parses every batch before writing anything. On success the samples
// are appended to the store as a single new batch file.
func (w *Workflow) Upload(batches []Batch, by string) (UploadResult, error) {
	if len(batches) == 0 {
		return UploadResult{}, ErrNoBatches
	}
	var added []domain.Sample
	for _, b := range batches {
		samples, err := filestore.ParseBatch(b.Data)
		if err != nil {
			return UploadResult{}, &UploadError{File: b.Name, Err: err}
		}
		added = append(added, samples...)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	res := UploadResult{Added: len(added), FirstIndex: len(w.state.Samples), Total: len(w.state.Samples)}
	if len(added) == 0 {
		return res, nil
	}
	at := w.timestamp()
	name, err := w.store.SaveBatch(added, at)
	if err != nil {
		return UploadResult{}, fmt.Errorf("save batch: %w", err)
	}
	w.state.Samples = append(w.state.Samples, added...)
	res.File = name
	res.Total = len(w.state.Samples)

	if w.audit != nil {
		id, err := w.audit.RecordUpload(name, len(added), res.FirstIndex, by, at)
		if err != nil {
			log.Printf("audit upload error file=%s: %v (non-fatal)", name, err)
		}
		res.BatchID = id
	}
	w.metrics.Uploaded(len(added), res.Total)
	log.Printf("Upload stored: file=%s added=%d total=%d by=%s", name, len(added), res.Total, by)
	return res, nil
}

// Partition replaces the assignment map with a fresh split of the current
// samples. Existing ledger entries are kept even when no labeler covers them.
func (w *Workflow) Partition(numLabelers int, by string) (domain.AssignmentMap, error) {
	if numLabelers < 1 {
		numLabelers = 1
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	total := len(w.state.Samples)
	assignments := labeling.Partition(total, numLabelers)
	if err := w.store.SaveAssignments(assignments); err != nil {
		return nil, fmt.Errorf("save assignments: %w", err)
	}
	w.state.Assignments = assignments

	if w.audit != nil {
		if err := w.audit.RecordPartition(numLabelers, total, by, w.timestamp()); err != nil {
			log.Printf("audit partition error: %v (non-fatal)", err)
		}
	}
	w.metrics.Partitioned()
	w.observeProgress()
	if orphans := labeling.Orphaned(assignments, w.state.Ledger); len(orphans) > 0 {
		log.Printf("Partition left %d labeled samples without a labeler", len(orphans))
	}
	log.Printf("Partitioned: samples=%d labelers=%d by=%s", total, numLabelers, by)
	return assignments.Clone(), nil
}

// SetLabel writes a label decision and persists the ledger. LabelUnset
// removes the entry. It reports whether the ledger changed.
func (w *Workflow) SetLabel(index int, label domain.Label, labeler, actor string) (bool, error) {
	if !label.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if index < 0 || index >= len(w.state.Samples) {
		return false, fmt.Errorf("%w: index %d", ErrSampleNotFound, index)
	}
	at := w.timestamp()
	next := w.state.Ledger.Clone()
	if !next.Set(index, label, labeler, at) {
		return false, nil
	}
	if err := w.store.SaveLedger(next); err != nil {
		return false, fmt.Errorf("save ledger: %w", err)
	}
	w.state.Ledger = next

	if w.audit != nil {
		if err := w.audit.RecordLabel(index, label, labeler, actor, at); err != nil {
			log.Printf("audit label error index=%d: %v (non-fatal)", index, err)
		}
	}
	if label.IsUnset() {
		w.metrics.LabelCleared()
	} else {
		w.metrics.LabelSet(label)
	}
	w.observeProgress()
	return true, nil
}

func (w *Workflow) Label(index int) (domain.LabelEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Ledger.Get(index)
}

func (w *Workflow) Sample(index int) (domain.Sample, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if index < 0 || index >= len(w.state.Samples) {
		return domain.Sample{}, false
	}
	return w.state.Samples[index], true
}

func (w *Workflow) SampleCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.state.Samples)
}

// Assigned returns a copy of the labeler's indices; ok is false for an
// unknown labeler.
func (w *Workflow) Assigned(labeler string) ([]int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	indices, ok := w.state.Assignments[labeler]
	if !ok {
		return nil, false
	}
	return append([]int{}, indices...), true
}

func (w *Workflow) Labelers() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Assignments.Labelers()
}

func (w *Workflow) Progress(labeler string) domain.Progress {
	w.mu.Lock()
	defer w.mu.Unlock()
	return labeling.ComputeProgress(labeler, w.state.Assignments, w.state.Ledger)
}

func (w *Workflow) AllProgress() []domain.Progress {
	w.mu.Lock()
	defer w.mu.Unlock()
	return labeling.ComputeAllProgress(w.state.Assignments, w.state.Ledger)
}

func (w *Workflow) Orphaned() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return labeling.Orphaned(w.state.Assignments, w.state.Ledger)
}

// LabeledSamples returns every labeled sample with its label, in index
// order. Used as few-shot material for suggestions.
func (w *Workflow) LabeledSamples() ([]domain.Sample, []domain.Label) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var samples []domain.Sample
	var labels []domain.Label
	for _, idx := range w.state.Ledger.Indices() {
		if idx < 0 || idx >= len(w.state.Samples) {
			continue
		}
		entry, _ := w.state.Ledger.Get(idx)
		samples = append(samples, w.state.Samples[idx])
		labels = append(labels, entry.Label)
	}
	return samples, labels
}

func (w *Workflow) Export() []labeling.ExportRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return labeling.Export(w.state.Samples, w.state.Ledger)
}

// SavePolicyImage stores the reference image shown to labelers.
func (w *Workflow) SavePolicyImage(filename string, data []byte) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, err := w.store.SavePolicyImage(filename, data)
	if err != nil {
		return "", err
	}
	w.state.PolicyImage = p
	log.Printf("Policy image stored: %s", p)
	return p, nil
}

func (w *Workflow) PolicyImage() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.PolicyImage, w.state.PolicyImage != ""
}

// Reset wipes samples, assignments and the ledger from disk and memory. The
// policy image survives.
func (w *Workflow) Reset(by string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed, err := w.store.Reset()
	// Memory is cleared even on a partial failure.
	w.state.Samples = nil
	w.state.Assignments = domain.AssignmentMap{}
	w.state.Ledger = labeling.NewLedger()
	if err != nil {
		return removed, fmt.Errorf("reset store: %w", err)
	}

	if w.audit != nil {
		if err := w.audit.RecordReset(by, len(removed), w.timestamp()); err != nil {
			log.Printf("audit reset error: %v (non-fatal)", err)
		}
	}
	w.metrics.Reset()
	log.Printf("Data reset: removed=%d by=%s", len(removed), by)
	return removed, nil
}

// Snapshot returns a deep copy of the current state.
func (w *Workflow) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		Samples:     append([]domain.Sample{}, w.state.Samples...),
		Assignments: w.state.Assignments.Clone(),
		Ledger:      w.state.Ledger.Clone(),
		PolicyImage: w.state.PolicyImage,
	}
}

func (w *Workflow) observeProgress() {
	w.metrics.ObserveProgress(len(w.state.Samples), labeling.ComputeAllProgress(w.state.Assignments, w.state.Ledger))
}
