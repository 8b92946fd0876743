package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/King-fly/subtitle-api/internal/adapter/repo"
	"github.com/King-fly/subtitle-api/internal/domain"
	"github.com/King-fly/subtitle-api/internal/http/handlers"
	"github.com/King-fly/subtitle-api/internal/http/httpapi"
	"github.com/King-fly/subtitle-api/internal/infra"
	"github.com/King-fly/subtitle-api/internal/scheduler"
	"github.com/King-fly/subtitle-api/internal/storage"
)

const ownerHeader = "X-Owner-ID"

// taskResponse mirrors the wire shape of a task, decoded field by field so
// the tests assert on the public contract rather than internal types.
type taskResponse struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Formats  []string `json:"formats"`
	State    string   `json:"state"`
	Progress float64  `json:"progress"`
	Error    string   `json:"error"`
}

type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, mediaPath string) (string, func(), error) {
	return "audio.wav", func() {}, nil
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(ctx context.Context, wavPath, languageHint string) (domain.Transcript, error) {
	return domain.Transcript{
		{StartMS: 0, EndMS: 1500, Text: "hello from the test"},
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, domain.Store) {
	t.Helper()

	cfg := &infra.Config{
		AppEnv:         "test",
		MaxUploadBytes: 1 << 20,
		UploadDir:      t.TempDir(),
	}
	store := repo.NewMemoryStore()
	media, err := storage.NewMediaStore(cfg.UploadDir)
	if err != nil {
		t.Fatalf("NewMediaStore: %v", err)
	}

	sched := scheduler.New(scheduler.Config{
		Workers:           2,
		QueueCapacity:     8,
		MaxRetries:        1,
		RetryBackoff:      time.Millisecond,
		ExtractTimeout:    time.Second,
		TranscribeTimeout: time.Second,
	}, store, stubExtractor{}, stubTranscriber{}, zerolog.Nop())
	sched.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	})

	app := handlers.NewApp(cfg, store, sched, media, zerolog.Nop())
	srv := httptest.NewServer(httpapi.NewRouter(app))
	t.Cleanup(srv.Close)
	return srv, store
}

func uploadTask(t *testing.T, srv *httptest.Server, owner string, formats string) taskResponse {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "talk.mp4")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("fake media payload")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.WriteField("formats", formats); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/tasks", &body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(ownerHeader, owner)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /api/tasks: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want 202, body %s", resp.StatusCode, raw)
	}

	var task taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	return task
}

func doJSON(t *testing.T, method, url, owner string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if owner != "" {
		req.Header.Set(ownerHeader, owner)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	return resp, body
}

func waitForState(t *testing.T, srv *httptest.Server, owner, id, want string) taskResponse {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/tasks/"+id, nil)
		req.Header.Set(ownerHeader, owner)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET task: %v", err)
		}
		var task taskResponse
		err = json.NewDecoder(resp.Body).Decode(&task)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode task: %v", err)
		}
		if task.State == want {
			return task
		}
		if domain.JobState(task.State).Terminal() {
			t.Fatalf("job settled as %q (error %q), want %q", task.State, task.Error, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached state %q", id, want)
	return taskResponse{}
}

func TestUploadRunsToCompletionAndServesArtifacts(t *testing.T) {
	srv, _ := newTestServer(t)

	task := uploadTask(t, srv, "alice", "srt,vtt")
	done := waitForState(t, srv, "alice", task.ID, string(domain.JobStateCompleted))
	if done.Progress != 1 {
		t.Fatalf("progress = %v, want 1", done.Progress)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/tasks/"+task.ID+"/subtitles", "alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list subtitles status = %d", resp.StatusCode)
	}
	records, ok := body["subtitles"].([]any)
	if !ok || len(records) != 2 {
		t.Fatalf("subtitles = %v, want 2 records", body["subtitles"])
	}

	first := records[0].(map[string]any)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/subtitles/"+first["id"].(string)+"/download", nil)
	req.Header.Set(ownerHeader, "alice")
	dl, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dl.Body.Close()
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", dl.StatusCode)
	}
	content, _ := io.ReadAll(dl.Body)
	if !strings.Contains(string(content), "hello from the test") {
		t.Fatalf("artifact content %q lacks transcript text", content)
	}
	if cd := dl.Header.Get("Content-Disposition"); !strings.Contains(cd, "talk.") {
		t.Fatalf("Content-Disposition = %q, want filename derived from upload", cd)
	}
}

func TestOwnerHeaderIsRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/tasks", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["error"] != "invalid_request" {
		t.Fatalf("error = %v, want invalid_request", body["error"])
	}
}

func TestUploadRejectsUnknownFormat(t *testing.T) {
	srv, store := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "talk.mp4")
	_, _ = part.Write([]byte("payload"))
	_ = mw.WriteField("formats", "ass")
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/tasks", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(ownerHeader, "alice")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	jobs, err := store.ListByOwner(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("rejected upload created %d job records", len(jobs))
	}
}

func TestOversizedUploadIs413(t *testing.T) {
	srv, _ := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "huge.mp4")
	_, _ = part.Write(bytes.Repeat([]byte("x"), 2<<20))
	_ = mw.WriteField("formats", "srt")
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/tasks", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(ownerHeader, "alice")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
}

func TestTasksAreScopedToOwner(t *testing.T) {
	srv, _ := newTestServer(t)

	task := uploadTask(t, srv, "alice", "srt")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/tasks/"+task.ID, "mallory")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for another owner's job", resp.StatusCode)
	}
	if body["error"] != "not_found" {
		t.Fatalf("error = %v, want not_found", body["error"])
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/tasks", "mallory")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	if tasks, ok := body["tasks"].([]any); !ok || len(tasks) != 0 {
		t.Fatalf("tasks = %v, want empty list", body["tasks"])
	}
}

func TestCancelIsIdempotentOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	task := uploadTask(t, srv, "alice", "srt")
	waitForState(t, srv, "alice", task.ID, string(domain.JobStateCompleted))

	for i := 0; i < 2; i++ {
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/tasks/"+task.ID+"/cancel", "alice")
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("cancel #%d status = %d, want 202", i+1, resp.StatusCode)
		}
		if body["status"] != "cancel_requested" {
			t.Fatalf("cancel #%d body = %v", i+1, body)
		}
	}

	// A completed job stays completed.
	done := waitForState(t, srv, "alice", task.ID, string(domain.JobStateCompleted))
	if done.State != string(domain.JobStateCompleted) {
		t.Fatalf("state = %q after cancel of completed job", done.State)
	}
}

func TestDeleteRemovesJobAndArtifacts(t *testing.T) {
	srv, store := newTestServer(t)

	task := uploadTask(t, srv, "alice", "srt,txt")
	waitForState(t, srv, "alice", task.ID, string(domain.JobStateCompleted))

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/tasks/"+task.ID, nil)
	req.Header.Set(ownerHeader, "alice")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}

	if _, err := store.GetByID(context.Background(), task.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("job still present after delete: %v", err)
	}
	if _, err := store.ListSubtitles(context.Background(), task.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("subtitles still listable after delete: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}
