package server

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/mediascribe/mediascribe/pkg/transcript"
)

// JobStatus is the lifecycle state of a transcription job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobUploading  JobStatus = "uploading"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobError      JobStatus = "error"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// Job is a snapshot of one transcription job. Instances handed out by
// [Store] are copies; mutate jobs only through [Store.Update].
type Job struct {
	ID        string              `json:"job_id"`
	Status    JobStatus           `json:"status"`
	Progress  int                 `json:"progress"`
	Error     string              `json:"error,omitempty"`
	Filename  string              `json:"filename,omitempty"`
	Formats   []transcript.Format `json:"formats,omitempty"`
	CreatedAt time.Time           `json:"created_at"`

	// Outputs maps each finished format to its file on disk. Not exposed in
	// status responses; downloads go through the download endpoint.
	Outputs map[transcript.Format]string `json:"-"`
}

// Store is an in-memory job registry with subscription support for progress
// streaming. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*Job
	subs map[string][]chan Job
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*Job),
		subs: make(map[string][]chan Job),
	}
}

// newJobID returns a random 32-character hex identifier.
func newJobID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms.
		panic("server: read random bytes: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// Create registers a new pending job and returns a snapshot of it.
func (s *Store) Create() Job {
	j := &Job{
		ID:        newJobID(),
		Status:    JobPending,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()
	return *j
}

// Get returns a snapshot of the job with the given ID.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Update applies fn to the job under the store lock and notifies all
// subscribers with the updated snapshot. Unknown IDs are ignored.
func (s *Store) Update(id string, fn func(*Job)) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	fn(j)
	snapshot := *j
	subs := make([]chan Job, len(s.subs[id]))
	copy(subs, s.subs[id])
	s.mu.Unlock()

	for _, ch := range subs {
		// Drop updates for slow subscribers instead of blocking the job.
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Subscribe returns a channel that receives job snapshots on every update,
// and a cancel function that unregisters the subscription. The channel is
// buffered; updates are dropped rather than blocking the publishing job.
func (s *Store) Subscribe(id string) (<-chan Job, func()) {
	ch := make(chan Job, 16)
	s.mu.Lock()
	s.subs[id] = append(s.subs[id], ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.subs[id]
		for i, c := range list {
			if c == ch {
				s.subs[id] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(s.subs[id]) == 0 {
			delete(s.subs, id)
		}
	}
	return ch, cancel
}
