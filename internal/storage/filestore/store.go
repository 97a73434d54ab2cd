package filestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"labelbot/internal/domain"
)

const (
	LabelsFile      = "labels.json"
	AssignmentsFile = "assignments.json"
	policyImageBase = "policy_image"
	batchTimeLayout = "20060102_150405"
)

var batchFilePattern = regexp.MustCompile(`^data_(\d{8}_\d{6})(?:_(\d+))?\.json$`)

var policyImageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Store persists workflow state as JSON files under one data directory.
// A missing file reads as "no data yet".
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("data dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// --- Ledger and assignments ---

func (s *Store) LoadLedger() (map[string]domain.LabelEntry, error) {
	ledger := make(map[string]domain.LabelEntry)
	if err := s.readJSON(LabelsFile, &ledger); err != nil {
		return nil, err
	}
	if ledger == nil {
		ledger = make(map[string]domain.LabelEntry)
	}
	return ledger, nil
}

func (s *Store) SaveLedger(ledger map[string]domain.LabelEntry) error {
	if ledger == nil {
		ledger = map[string]domain.LabelEntry{}
	}
	return s.writeJSON(LabelsFile, ledger)
}

func (s *Store) LoadAssignments() (domain.AssignmentMap, error) {
	assignments := make(domain.AssignmentMap)
	if err := s.readJSON(AssignmentsFile, &assignments); err != nil {
		return nil, err
	}
	if assignments == nil {
		assignments = make(domain.AssignmentMap)
	}
	for id, indices := range assignments {
		if indices == nil {
			assignments[id] = []int{}
		}
	}
	return assignments, nil
}

func (s *Store) SaveAssignments(assignments domain.AssignmentMap) error {
	if assignments == nil {
		assignments = domain.AssignmentMap{}
	}
	return s.writeJSON(AssignmentsFile, assignments)
}

// --- Sample batches ---

type batchFile struct {
	name  string
	stamp string
	seq   int
}

// BatchFiles lists data_<timestamp>[_<seq>].json files ordered by embedded
// timestamp, then sequence number. This order defines sample indices.
func (s *Store) BatchFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []batchFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := batchFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		seq := 1
		if m[2] != "" {
			seq, _ = strconv.Atoi(m[2])
		}
		files = append(files, batchFile{name: e.Name(), stamp: m[1], seq: seq})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].stamp != files[j].stamp {
			return files[i].stamp < files[j].stamp
		}
		return files[i].seq < files[j].seq
	})
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}

// LoadSamples concatenates every batch file in BatchFiles order.
func (s *Store) LoadSamples() ([]domain.Sample, error) {
	names, err := s.BatchFiles()
	if err != nil {
		return nil, err
	}
	var samples []domain.Sample
	for _, name := range names {
		data, err := os.ReadFile(s.path(name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		batch, err := ParseBatch(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		samples = append(samples, batch...)
	}
	return samples, nil
}

// SaveBatch writes samples as a new batch file stamped with now. A file for
// the same second gets a _2, _3, ... suffix instead of being overwritten.
func (s *Store) SaveBatch(samples []domain.Sample, now time.Time) (string, error) {
	if samples == nil {
		samples = []domain.Sample{}
	}
	stamp := now.Format(batchTimeLayout)
	name := fmt.Sprintf("data_%s.json", stamp)
	for seq := 2; s.exists(name); seq++ {
		name = fmt.Sprintf("data_%s_%d.json", stamp, seq)
	}
	if err := s.writeJSON(name, samples); err != nil {
		return "", err
	}
	return name, nil
}

// ParseBatch decodes an uploaded batch: a JSON array of objects that each
// carry "instruction" and "output". Other fields are ignored.
func ParseBatch(data []byte) ([]domain.Sample, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("expected a JSON array of {instruction, output} objects: %w", err)
	}
	if raw == nil {
		return nil, errors.New("expected a JSON array of {instruction, output} objects, got null")
	}
	samples := make([]domain.Sample, 0, len(raw))
	for i, obj := range raw {
		if obj == nil {
			return nil, fmt.Errorf("item %d: expected an object", i)
		}
		var sample domain.Sample
		if err := decodeField(obj, "instruction", &sample.Instruction); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if err := decodeField(obj, "output", &sample.Output); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func decodeField(obj map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := obj[key]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return fmt.Errorf("missing %q", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%q must be a string: %w", key, err)
	}
	return nil
}

// --- Policy image ---

// SavePolicyImage stores the policy reference image, replacing any earlier
// one regardless of its extension.
func (s *Store) SavePolicyImage(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !policyImageExts[ext] {
		return "", fmt.Errorf("unsupported policy image type %q (png, jpg, jpeg)", ext)
	}
	for other := range policyImageExts {
		if other == ext {
			continue
		}
		if err := os.Remove(s.path(policyImageBase + other)); err != nil && !os.IsNotExist(err) {
			return "", err
		}
	}
	name := policyImageBase + ext
	if err := writeFileAtomic(s.path(name), data, 0o644); err != nil {
		return "", err
	}
	return s.path(name), nil
}

// PolicyImagePath returns the stored policy image, if any.
func (s *Store) PolicyImagePath() (string, bool) {
	for _, ext := range []string{".png", ".jpg", ".jpeg"} {
		p := s.path(policyImageBase + ext)
		if s.exists(policyImageBase + ext) {
			return p, true
		}
	}
	return "", false
}

func isPolicyImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return policyImageExts[ext] && strings.TrimSuffix(name, filepath.Ext(name)) == policyImageBase
}

// --- Reset ---

// Reset deletes everything in the data directory except the policy image.
// It returns the names it removed.
func (s *Store) Reset() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var removed []string
	for _, e := range entries {
		if isPolicyImage(e.Name()) {
			continue
		}
		if err := os.RemoveAll(s.path(e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}

// --- helpers ---

func (s *Store) exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

func (s *Store) readJSON(name string, dst any) error {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return writeFileAtomic(s.path(name), data, 0o644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
