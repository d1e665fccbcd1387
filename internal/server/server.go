// Package server exposes the transcription pipeline over HTTP: multipart
// uploads, job status polling, a websocket progress stream, and transcript
// downloads. Jobs are tracked in memory and processed by a bounded worker
// pool.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mediascribe/mediascribe/internal/config"
	"github.com/mediascribe/mediascribe/internal/health"
	"github.com/mediascribe/mediascribe/internal/media"
	"github.com/mediascribe/mediascribe/internal/observe"
	"github.com/mediascribe/mediascribe/internal/pipeline"
	"github.com/mediascribe/mediascribe/pkg/provider/asr"
	"github.com/mediascribe/mediascribe/pkg/transcript"
)

const (
	// maxUploadBytes caps a single media upload at 2 GiB.
	maxUploadBytes = 2 << 30

	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 15 * time.Second
)

// defaultMaxConcurrentJobs applies when the config leaves the cap unset.
const defaultMaxConcurrentJobs = 2

// Server handles transcription jobs over HTTP.
type Server struct {
	cfg     *config.Config
	runner  *pipeline.Runner
	store   *Store
	metrics *observe.Metrics
	logger  *slog.Logger
	health  *health.Handler
	sem     *semaphore.Weighted
	workDir string
}

// New creates a Server. The work directory from the config is created if
// missing; an empty setting falls back to a "mediascribe" directory under the
// system temp dir. The given health checkers are served on /readyz.
func New(cfg *config.Config, runner *pipeline.Runner, metrics *observe.Metrics, checkers ...health.Checker) (*Server, error) {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	workDir := cfg.Server.WorkDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "mediascribe")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("server: create work dir %q: %w", workDir, err)
	}
	maxJobs := cfg.Server.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = defaultMaxConcurrentJobs
	}
	return &Server{
		cfg:     cfg,
		runner:  runner,
		store:   NewStore(),
		metrics: metrics,
		logger:  slog.Default(),
		health:  health.New(checkers...),
		sem:     semaphore.NewWeighted(int64(maxJobs)),
		workDir: workDir,
	}, nil
}

// Handler returns the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /status/{id}", s.handleStatus)
	mux.HandleFunc("GET /result/{id}", s.handleResult)
	mux.HandleFunc("GET /download/{id}/{format}", s.handleDownload)
	mux.HandleFunc("GET /ws/{id}", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

// Run serves HTTP on the configured listen address until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// jobOptions builds the per-job pipeline options from the server config plus
// any per-request overrides in the multipart form. The caller fills in the
// job-specific directories.
func (s *Server) jobOptions(r *http.Request) (pipeline.Options, error) {
	asrOpts := asr.Options{
		Language:       s.cfg.ASR.Language,
		Task:           s.cfg.ASR.Task,
		WordTimestamps: s.cfg.ASR.WordTimestamps,
	}
	if lang := r.FormValue("language"); lang != "" {
		asrOpts.Language = lang
	}
	if task := r.FormValue("task"); task != "" {
		t := asr.Task(task)
		if !t.IsValid() {
			return pipeline.Options{}, fmt.Errorf("invalid task %q", task)
		}
		asrOpts.Task = t
	}
	if prompt := r.FormValue("prompt"); prompt != "" {
		asrOpts.Prompt = prompt
	}

	formats := s.cfg.Output.Formats
	if len(formats) == 0 {
		formats = []transcript.Format{transcript.FormatJSON, transcript.FormatSRT}
	}
	if raw := r.FormValue("formats"); raw != "" {
		formats = nil
		for _, part := range strings.Split(raw, ",") {
			f := transcript.Format(strings.TrimSpace(part))
			if !f.IsValid() {
				return pipeline.Options{}, fmt.Errorf("invalid format %q", part)
			}
			formats = append(formats, f)
		}
	}

	return pipeline.Options{
		ASR:      asrOpts,
		MaxWords: s.cfg.ASR.MaxWords,
		Formats:  formats,
	}, nil
}

// handleUpload accepts a multipart media upload, registers a job, and starts
// processing it in the background. Responds 202 with the job ID.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	if !media.IsVideoFile(filename) && !media.IsAudioFile(filename) {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported media type")
		return
	}

	opts, err := s.jobOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := s.store.Create()
	jobDir := filepath.Join(s.workDir, job.ID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "create job directory")
		return
	}
	opts.OutputDir = jobDir
	opts.WorkDir = jobDir

	s.store.Update(job.ID, func(j *Job) {
		j.Status = JobUploading
		j.Filename = filename
		j.Formats = opts.Formats
	})

	inputPath := filepath.Join(jobDir, filename)
	dst, err := os.Create(inputPath)
	if err != nil {
		s.failJob(r.Context(), job.ID, fmt.Errorf("save upload: %w", err))
		writeError(w, http.StatusInternalServerError, "save upload")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		s.failJob(r.Context(), job.ID, fmt.Errorf("save upload: %w", err))
		writeError(w, http.StatusInternalServerError, "save upload")
		return
	}
	if err := dst.Close(); err != nil {
		s.failJob(r.Context(), job.ID, fmt.Errorf("save upload: %w", err))
		writeError(w, http.StatusInternalServerError, "save upload")
		return
	}

	go s.process(job.ID, inputPath, opts)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": "uploaded",
	})
}

// process runs one job through the pipeline, bounded by the worker semaphore.
func (s *Server) process(jobID, inputPath string, opts pipeline.Options) {
	ctx := context.Background()
	log := s.logger.With("job_id", jobID)

	s.metrics.QueuedJobs.Add(ctx, 1)
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.metrics.QueuedJobs.Add(ctx, -1)
		s.failJob(ctx, jobID, err)
		return
	}
	s.metrics.QueuedJobs.Add(ctx, -1)
	s.metrics.ActiveJobs.Add(ctx, 1)
	defer func() {
		s.metrics.ActiveJobs.Add(ctx, -1)
		s.sem.Release(1)
	}()

	s.store.Update(jobID, func(j *Job) {
		j.Status = JobProcessing
		j.Progress = 10
	})

	opts.OnProgress = func(stage pipeline.Stage, percent int) {
		p := progressFor(stage, percent)
		s.store.Update(jobID, func(j *Job) {
			if p > j.Progress {
				j.Progress = p
			}
		})
	}

	res, err := s.runner.Run(ctx, inputPath, opts)

	// The upload is no longer needed regardless of outcome.
	if rmErr := os.Remove(inputPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		log.Warn("failed to remove upload", "err", rmErr)
	}

	if err != nil {
		log.Error("job failed", "err", err)
		s.failJob(ctx, jobID, err)
		return
	}

	s.store.Update(jobID, func(j *Job) {
		j.Status = JobCompleted
		j.Progress = 100
		j.Outputs = res.OutputPaths
	})
	s.metrics.RecordJobCompleted(ctx, string(JobCompleted))
	log.Info("job completed", "segments", len(res.Transcript.Segments))
}

// failJob marks the job as errored.
func (s *Server) failJob(ctx context.Context, jobID string, err error) {
	s.store.Update(jobID, func(j *Job) {
		j.Status = JobError
		j.Error = err.Error()
	})
	s.metrics.RecordJobCompleted(ctx, string(JobError))
}

// progressFor maps pipeline stage callbacks onto the coarse job progress
// scale used in status responses.
func progressFor(stage pipeline.Stage, percent int) int {
	switch stage {
	case pipeline.StageExtracting:
		if percent >= 100 {
			return 30
		}
		return 20
	case pipeline.StageTranscribing:
		if percent >= 100 {
			return 70
		}
		return 40
	case pipeline.StageFormatting:
		return 85
	case pipeline.StageDone:
		return 100
	}
	return 0
}

// statusResponse is the JSON body served by the status endpoint.
type statusResponse struct {
	Status   JobStatus           `json:"status"`
	Progress int                 `json:"progress"`
	Error    string              `json:"error,omitempty"`
	Filename string              `json:"filename,omitempty"`
	Formats  []transcript.Format `json:"formats,omitempty"`
}

func statusFor(j Job) statusResponse {
	resp := statusResponse{
		Status:   j.Status,
		Progress: j.Progress,
		Error:    j.Error,
	}
	if j.Status == JobCompleted {
		resp.Filename = j.Filename
		resp.Formats = j.Formats
	}
	return resp
}

// handleStatus reports the current state of a job.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, statusFor(job))
}

// handleResult serves the finished transcript JSON inline. Jobs that were
// run without the json format have no result body; their outputs are still
// reachable through the download endpoint.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != JobCompleted {
		writeError(w, http.StatusBadRequest, "job not completed yet")
		return
	}
	path, ok := job.Outputs[transcript.FormatJSON]
	if !ok {
		writeError(w, http.StatusNotFound, "job has no json output")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "transcript file not found")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleDownload serves a finished transcript file as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != JobCompleted {
		writeError(w, http.StatusBadRequest, "job not completed yet")
		return
	}
	format := transcript.Format(r.PathValue("format"))
	path, ok := job.Outputs[format]
	if !ok {
		writeError(w, http.StatusNotFound, "no output for format")
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "transcript file not found")
		return
	}

	stem := strings.TrimSuffix(job.Filename, filepath.Ext(job.Filename))
	name := stem + format.Ext()
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

// handleWS streams job snapshots over a websocket until the job reaches a
// terminal state or the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	// Subscribe before sending the initial snapshot so no update is lost
	// between the two.
	updates, cancel := s.store.Subscribe(id)
	defer cancel()

	if err := writeWS(ctx, conn, statusFor(job)); err != nil {
		return
	}
	if job.Status.Terminal() {
		conn.Close(websocket.StatusNormalClosure, "job finished")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-updates:
			if err := writeWS(ctx, conn, statusFor(j)); err != nil {
				return
			}
			if j.Status.Terminal() {
				conn.Close(websocket.StatusNormalClosure, "job finished")
				return
			}
		}
	}
}

// writeWS marshals v and sends it as a text frame.
func writeWS(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}

// writeError sends a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
