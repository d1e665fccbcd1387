package server

import (
	"testing"

	"github.com/mediascribe/mediascribe/pkg/transcript"
)

func TestStore_CreateAndGet(t *testing.T) {
	t.Parallel()
	s := NewStore()

	j := s.Create()
	if j.ID == "" {
		t.Fatal("created job has empty ID")
	}
	if len(j.ID) != 32 {
		t.Errorf("job ID length = %d, want 32", len(j.ID))
	}
	if j.Status != JobPending {
		t.Errorf("status = %q, want pending", j.Status)
	}

	got, ok := s.Get(j.ID)
	if !ok {
		t.Fatal("Get did not find created job")
	}
	if got.ID != j.ID {
		t.Errorf("ID = %q, want %q", got.ID, j.ID)
	}

	if _, ok := s.Get("missing"); ok {
		t.Error("Get found a job that was never created")
	}
}

func TestStore_UniqueIDs(t *testing.T) {
	t.Parallel()
	s := NewStore()
	seen := make(map[string]struct{}, 100)
	for range 100 {
		j := s.Create()
		if _, dup := seen[j.ID]; dup {
			t.Fatalf("duplicate job ID %q", j.ID)
		}
		seen[j.ID] = struct{}{}
	}
}

func TestStore_UpdateMutatesAndSnapshots(t *testing.T) {
	t.Parallel()
	s := NewStore()
	j := s.Create()

	s.Update(j.ID, func(job *Job) {
		job.Status = JobProcessing
		job.Progress = 40
	})

	got, _ := s.Get(j.ID)
	if got.Status != JobProcessing || got.Progress != 40 {
		t.Errorf("job = %+v, want processing/40", got)
	}

	// Mutating the snapshot must not affect the store.
	got.Progress = 99
	again, _ := s.Get(j.ID)
	if again.Progress != 40 {
		t.Errorf("progress = %d, want 40 after snapshot mutation", again.Progress)
	}
}

func TestStore_UpdateUnknownIDIsNoop(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Update("missing", func(j *Job) { j.Status = JobError })
}

func TestStore_SubscribeReceivesUpdates(t *testing.T) {
	t.Parallel()
	s := NewStore()
	j := s.Create()

	updates, cancel := s.Subscribe(j.ID)
	defer cancel()

	s.Update(j.ID, func(job *Job) {
		job.Status = JobCompleted
		job.Progress = 100
		job.Outputs = map[transcript.Format]string{transcript.FormatSRT: "/tmp/out.srt"}
	})

	got := <-updates
	if got.Status != JobCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
}

func TestStore_CancelStopsDelivery(t *testing.T) {
	t.Parallel()
	s := NewStore()
	j := s.Create()

	updates, cancel := s.Subscribe(j.ID)
	cancel()

	s.Update(j.ID, func(job *Job) { job.Progress = 50 })

	select {
	case got := <-updates:
		t.Errorf("received update %+v after cancel", got)
	default:
	}
}

func TestStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()
	s := NewStore()
	j := s.Create()

	// Fill the subscriber buffer and keep publishing; Update must not block.
	_, cancel := s.Subscribe(j.ID)
	defer cancel()
	for i := range 100 {
		s.Update(j.ID, func(job *Job) { job.Progress = i })
	}

	got, _ := s.Get(j.ID)
	if got.Progress != 99 {
		t.Errorf("progress = %d, want 99", got.Progress)
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	t.Parallel()
	cases := map[JobStatus]bool{
		JobPending:    false,
		JobUploading:  false,
		JobProcessing: false,
		JobCompleted:  true,
		JobError:      true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}
