package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/pkg/client"
)

type recordedRequest struct {
	method string
	path   string
	accept string
}

func newAPIServer(t *testing.T, routes map[string]string) (*client.Client, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			accept: r.Header.Get("Accept"),
		})
		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":"JOB_NOT_FOUND","message":"no such job"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return client.New(server.URL, time.Second), &seen
}

func TestListJobs(t *testing.T) {
	c, seen := newAPIServer(t, map[string]string{
		"GET /api/v1/jobs": `{"data":[
			{"id":"aaa11111","source_url":"https://mega.nz/file/one#k","user_id":9,"chat_id":99,
			 "state":"DONE","files":{"relayed":3,"skipped":0,"abandoned":0,"failed":0},
			 "started_at":"2026-08-23T10:00:00Z","duration":"1m30s"},
			{"id":"bbb22222","source_url":"https://mega.nz/file/two#k","user_id":9,"chat_id":99,
			 "state":"RUNNING","files":{"relayed":1,"skipped":0,"abandoned":0,"failed":0},
			 "started_at":"2026-08-23T11:00:00Z","duration":"12s"}
		]}`,
	})

	jobs, err := c.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "aaa11111", jobs[0].ID)
	assert.Equal(t, "DONE", jobs[0].State)
	assert.Equal(t, 3, jobs[0].Files.Relayed)
	assert.Equal(t, "RUNNING", jobs[1].State)

	require.Len(t, *seen, 1)
	assert.Equal(t, "application/json", (*seen)[0].accept)
}

func TestGetJobWithProgress(t *testing.T) {
	c, _ := newAPIServer(t, map[string]string{
		"GET /api/v1/jobs/abc12345": `{"data":{
			"id":"abc12345","source_url":"https://mega.nz/file/x#k","user_id":9,"chat_id":99,
			"state":"RUNNING","files":{"relayed":0,"skipped":0,"abandoned":0,"failed":0},
			"started_at":"2026-08-23T10:00:00Z","duration":"5s",
			"progress":{"phase":"upload","final":false,"label":"clip.mp4",
			            "bytes_done":512,"bytes_total":1024,"rate":128.5}
		}}`,
	})

	detail, err := c.GetJob(context.Background(), "abc12345")
	require.NoError(t, err)
	assert.Equal(t, "abc12345", detail.ID)
	require.NotNil(t, detail.Progress)
	assert.Equal(t, "upload", detail.Progress.Phase)
	assert.Equal(t, int64(512), detail.Progress.BytesDone)
	assert.Equal(t, int64(1024), detail.Progress.BytesTotal)
	assert.InDelta(t, 128.5, detail.Progress.Rate, 0.01)
}

func TestCancelJobUsesPost(t *testing.T) {
	c, seen := newAPIServer(t, map[string]string{
		"POST /api/v1/jobs/abc12345/cancel": `{"data":{
			"id":"abc12345","source_url":"https://mega.nz/file/x#k","user_id":9,"chat_id":99,
			"state":"CANCEL_REQUESTED","files":{"relayed":0,"skipped":0,"abandoned":0,"failed":0},
			"started_at":"2026-08-23T10:00:00Z","duration":"5s"
		}}`,
	})

	job, err := c.CancelJob(context.Background(), "abc12345")
	require.NoError(t, err)
	assert.Equal(t, "CANCEL_REQUESTED", job.State)

	require.Len(t, *seen, 1)
	assert.Equal(t, http.MethodPost, (*seen)[0].method)
	assert.Equal(t, "/api/v1/jobs/abc12345/cancel", (*seen)[0].path)
}

func TestGetJobNotFound(t *testing.T) {
	c, _ := newAPIServer(t, nil)

	_, err := c.GetJob(context.Background(), "missing1")
	require.Error(t, err)

	apiErr, ok := err.(*client.APIError)
	require.True(t, ok, "expected *client.APIError, got %T", err)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "JOB_NOT_FOUND", apiErr.Code)
	assert.Equal(t, "no such job", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "JOB_NOT_FOUND")
}

func TestNonEnvelopeErrorFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	c := client.New(server.URL, time.Second)
	_, err := c.Health(context.Background())
	require.Error(t, err)

	apiErr, ok := err.(*client.APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "HTTP_ERROR", apiErr.Code)
}

func TestHealthAndCleanup(t *testing.T) {
	c, _ := newAPIServer(t, map[string]string{
		"GET /api/v1/health":   `{"data":{"status":"ok","active_jobs":2}}`,
		"POST /api/v1/cleanup": `{"data":{"removed":4}}`,
	})

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 2, health.ActiveJobs)

	result, err := c.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Removed)
}

func TestBaseURLTrailingSlash(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"data":{"status":"ok","active_jobs":0}}`))
	}))
	defer server.Close()

	c := client.New(server.URL+"/", time.Second)
	_, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/health", gotPath)
}
