package server_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mediascribe/mediascribe/internal/config"
	"github.com/mediascribe/mediascribe/internal/pipeline"
	"github.com/mediascribe/mediascribe/internal/server"
	"github.com/mediascribe/mediascribe/pkg/provider/asr"
	"github.com/mediascribe/mediascribe/pkg/provider/asr/mock"
	"github.com/mediascribe/mediascribe/pkg/transcript"
)

func strp(s string) *string { return &s }

func fixtureResult() *asr.Result {
	return &asr.Result{
		Language: strp("en"),
		Segments: []transcript.Segment{
			{Start: 0.0, End: 2.0, Text: "hello there"},
		},
	}
}

// newTestServer builds a Server around the mock provider and returns an
// httptest instance serving its routes.
func newTestServer(t *testing.T, prov asr.Provider) *httptest.Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.WorkDir = t.TempDir()
	cfg.ASR.Backend = config.BackendOpenAI

	runner := pipeline.New(prov, nil, nil)
	srv, err := server.New(cfg, runner, nil)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// upload posts a multipart file and returns the decoded response body and
// status code.
func upload(t *testing.T, ts *httptest.Server, filename string, fields map[string]string) (map[string]any, int) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write([]byte("fake media bytes")); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	mw.Close()

	resp, err := http.Post(ts.URL+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST /upload: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body, resp.StatusCode
}

// waitForStatus polls the status endpoint until the job reaches want or the
// deadline expires.
func waitForStatus(t *testing.T, ts *httptest.Server, jobID string, want server.JobStatus) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/status/" + jobID)
		if err != nil {
			t.Fatalf("GET /status: %v", err)
		}
		var body map[string]any
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if body["status"] == string(want) {
			return body
		}
		if body["status"] == string(server.JobError) && want != server.JobError {
			t.Fatalf("job errored: %v", body["error"])
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestUpload_RunsJobToCompletion(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	body, code := upload(t, ts, "meeting.wav", nil)
	if code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %v)", code, body)
	}
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatal("no job_id in upload response")
	}

	status := waitForStatus(t, ts, jobID, server.JobCompleted)
	if status["progress"] != float64(100) {
		t.Errorf("progress = %v, want 100", status["progress"])
	}
	if status["filename"] != "meeting.wav" {
		t.Errorf("filename = %v, want meeting.wav", status["filename"])
	}
}

func TestUpload_NoFile(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	body, code := upload(t, ts, "", nil)
	if code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 (body %v)", code, body)
	}
}

func TestUpload_UnsupportedExtension(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	_, code := upload(t, ts, "notes.txt", nil)
	if code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", code)
	}
}

func TestUpload_InvalidFormatOverride(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	body, code := upload(t, ts, "meeting.wav", map[string]string{"formats": "vtt"})
	if code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 (body %v)", code, body)
	}
}

func TestUpload_InvalidTaskOverride(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	_, code := upload(t, ts, "meeting.wav", map[string]string{"task": "summarise"})
	if code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
}

func TestUpload_ForwardsOverridesToProvider(t *testing.T) {
	t.Parallel()
	prov := &mock.Provider{Result: fixtureResult()}
	ts := newTestServer(t, prov)

	body, code := upload(t, ts, "meeting.wav", map[string]string{
		"language": "de",
		"task":     "translate",
	})
	if code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %v)", code, body)
	}
	jobID := body["job_id"].(string)
	waitForStatus(t, ts, jobID, server.JobCompleted)

	calls := prov.Calls()
	if len(calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(calls))
	}
	if calls[0].Opts.Language != "de" {
		t.Errorf("language = %q, want de", calls[0].Opts.Language)
	}
	if calls[0].Opts.Task != asr.TaskTranslate {
		t.Errorf("task = %q, want translate", calls[0].Opts.Task)
	}
}

func TestStatus_UnknownJob(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	resp, err := http.Get(ts.URL + "/status/doesnotexist")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestResult_ReturnsTranscriptJSON(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	body, _ := upload(t, ts, "meeting.wav", nil)
	jobID := body["job_id"].(string)
	waitForStatus(t, ts, jobID, server.JobCompleted)

	resp, err := http.Get(ts.URL + "/result/" + jobID)
	if err != nil {
		t.Fatalf("GET /result: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var tr transcript.Transcript
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if tr.Language == nil || *tr.Language != "en" {
		t.Errorf("language = %v, want en", tr.Language)
	}
	if len(tr.Segments) != 1 || tr.Segments[0].Text != "hello there" {
		t.Errorf("segments = %+v, want single hello-there segment", tr.Segments)
	}
}

func TestResult_SRTOnlyJob(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	body, _ := upload(t, ts, "meeting.wav", map[string]string{"formats": "srt"})
	jobID := body["job_id"].(string)
	waitForStatus(t, ts, jobID, server.JobCompleted)

	resp, err := http.Get(ts.URL + "/result/" + jobID)
	if err != nil {
		t.Fatalf("GET /result: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for a job without json output", resp.StatusCode)
	}
}

func TestResult_UnknownJob(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	resp, err := http.Get(ts.URL + "/result/nope")
	if err != nil {
		t.Fatalf("GET /result: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDownload_CompletedJob(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	body, _ := upload(t, ts, "meeting.wav", map[string]string{"formats": "srt"})
	jobID := body["job_id"].(string)
	waitForStatus(t, ts, jobID, server.JobCompleted)

	resp, err := http.Get(ts.URL + "/download/" + jobID + "/srt")
	if err != nil {
		t.Fatalf("GET /download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	cd := resp.Header.Get("Content-Disposition")
	if !strings.Contains(cd, `"meeting.srt"`) {
		t.Errorf("Content-Disposition = %q, want attachment meeting.srt", cd)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	want := "1\n00:00:00,000 --> 00:00:02,000\nhello there\n"
	if string(data) != want {
		t.Errorf("srt body = %q, want %q", data, want)
	}
}

func TestDownload_UnknownFormat(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	body, _ := upload(t, ts, "meeting.wav", map[string]string{"formats": "srt"})
	jobID := body["job_id"].(string)
	waitForStatus(t, ts, jobID, server.JobCompleted)

	resp, err := http.Get(ts.URL + "/download/" + jobID + "/json")
	if err != nil {
		t.Fatalf("GET /download: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDownload_UnknownJob(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	resp, err := http.Get(ts.URL + "/download/nope/srt")
	if err != nil {
		t.Fatalf("GET /download: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestJobError_SurfacesInStatus(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Err: errors.New("model crashed")})

	body, _ := upload(t, ts, "meeting.wav", nil)
	jobID := body["job_id"].(string)

	status := waitForStatus(t, ts, jobID, server.JobError)
	errMsg, _ := status["error"].(string)
	if !strings.Contains(errMsg, "model crashed") {
		t.Errorf("error = %q, want mention of model crash", errMsg)
	}
}

func TestWebSocket_StreamsUntilTerminal(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	body, _ := upload(t, ts, "meeting.wav", nil)
	jobID := body["job_id"].(string)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + jobID
	ctx := t.Context()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(5 * time.Second)
	var last map[string]any
	for time.Now().Before(deadline) {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		if err := json.Unmarshal(data, &last); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if last["status"] == string(server.JobCompleted) || last["status"] == string(server.JobError) {
			break
		}
	}
	if last == nil {
		t.Fatal("no websocket frames received")
	}
	if last["status"] != string(server.JobCompleted) {
		t.Errorf("final status = %v, want completed", last["status"])
	}
	if last["progress"] != float64(100) {
		t.Errorf("final progress = %v, want 100", last["progress"])
	}
}

func TestWebSocket_UnknownJob(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	resp, err := http.Get(ts.URL + "/ws/missing")
	if err != nil {
		t.Fatalf("GET /ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, &mock.Provider{Result: fixtureResult()})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
