package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Store holds the job definitions.
type Store interface {
	Load() error
	Get(id string) (Job, bool)
	List() []Job
	Add(job Job) error
	Delete(id string) error
	Replace(jobs map[string]Job)
	Path() string
}

// fileConfig is the on-disk shape of the jobs file.
type fileConfig struct {
	Version int            `toml:"version"`
	Jobs    map[string]Job `toml:"jobs"`
}

// tomlStore implements Store backed by a TOML file.
type tomlStore struct {
	path string
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewTOML creates a TOML-backed store. An empty path defaults to jobs.toml.
func NewTOML(path string) Store {
	if path == "" {
		path = "jobs.toml"
	}
	return &tomlStore{path: path, jobs: make(map[string]Job)}
}

// Load reads the jobs file. A missing file leaves the store empty.
func (s *tomlStore) Load() error {
	jobs, err := LoadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	s.Replace(jobs)
	return nil
}

// LoadFile parses a jobs file into validated job definitions. Used by both
// the store and the hot-reload watcher.
func LoadFile(path string) (map[string]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg fileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse jobs file %s: %w", path, err)
	}
	jobs := make(map[string]Job, len(cfg.Jobs))
	for id, job := range cfg.Jobs {
		job.ID = id
		if err := job.Validate(); err != nil {
			return nil, err
		}
		jobs[id] = job
	}
	return jobs, nil
}

// Get returns one job by id.
func (s *tomlStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}

// List returns all jobs sorted by id.
func (s *tomlStore) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Add validates and stores a job, then persists the file.
func (s *tomlStore) Add(job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return s.save()
}

// Delete removes a job and persists the file.
func (s *tomlStore) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.jobs[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %s not found", id)
	}
	delete(s.jobs, id)
	s.mu.Unlock()
	return s.save()
}

// Replace swaps in a full set of job definitions without persisting. Used by
// the hot-reload path, where the file is already the source of truth.
func (s *tomlStore) Replace(jobs map[string]Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = jobs
}

// Path returns the backing file path.
func (s *tomlStore) Path() string {
	return s.path
}

func (s *tomlStore) save() error {
	s.mu.RLock()
	cfg := fileConfig{Version: 1, Jobs: make(map[string]Job, len(s.jobs))}
	for id, job := range s.jobs {
		cfg.Jobs[id] = job
	}
	s.mu.RUnlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create jobs directory: %w", err)
		}
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal jobs file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write jobs file: %w", err)
	}
	return nil
}
