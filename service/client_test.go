package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StoryToVideo-client/models"
	"StoryToVideo-client/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRemote starts a fake generation service; handler writes the envelope.
func newRemote(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/", srv.Client(), discardLogger())
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, code int, body map[string]any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestClientAnalyzeText(t *testing.T) {
	client := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/analyze-text", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Once upon a time", req["text"])
		writeEnvelope(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{"scenes": []map[string]any{
				{"id": "s1", "title": "Opening", "content": "Once upon a time", "image_generation_status": "pending"},
				{"id": "s2", "title": "Journey", "content": "the fox set out"},
			}},
		})
	})

	scenes, err := client.AnalyzeText(context.Background(), "Once upon a time")
	require.NoError(t, err)
	require.Len(t, scenes, 2)
	assert.Equal(t, "s1", scenes[0].ID)
	assert.Equal(t, "Journey", scenes[1].Title)
}

func TestClientGenerateImagesShapes(t *testing.T) {
	cases := []struct {
		name string
		data any
		want []models.GeneratedImage
	}{
		{name: "queued", data: nil, want: nil},
		{name: "receipt", data: map[string]any{"message": "queued"}, want: nil},
		{
			name: "bare list",
			data: []map[string]any{{"id": "s1", "url": "http://cdn/s1.png", "status": "finished"}},
			want: []models.GeneratedImage{{ID: "s1", URL: "http://cdn/s1.png", Status: models.ArtifactCompleted}},
		},
		{
			name: "wrapped",
			data: map[string]any{"images": []map[string]any{{"id": "s1", "status": "failed"}}},
			want: []models.GeneratedImage{{ID: "s1", Status: models.ArtifactError}},
		},
		{
			name: "single object without status",
			data: map[string]any{"id": "s1", "url": "http://cdn/s1.png"},
			want: []models.GeneratedImage{{ID: "s1", URL: "http://cdn/s1.png", Status: models.ArtifactCompleted}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/projects/p-1/generate-images", r.URL.Path)
				var req struct {
					Chunks []models.TextChunk `json:"chunks"`
				}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Len(t, req.Chunks, 1)
				writeEnvelope(t, w, http.StatusOK, map[string]any{"success": true, "data": tc.data})
			})
			images, err := client.GenerateImages(context.Background(), "p-1", []models.TextChunk{{ID: "s1", Content: "x"}})
			require.NoError(t, err)
			assert.Equal(t, tc.want, images)
		})
	}
}

func TestClientGenerateVideo(t *testing.T) {
	client := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/p-1/generate-video", r.URL.Path)
		writeEnvelope(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"finalVideo": map[string]any{"id": "v1", "url": "http://cdn/v1.mp4", "duration": 12.5, "status": "done"}},
		})
	})
	video, err := client.GenerateVideo(context.Background(), "p-1")
	require.NoError(t, err)
	require.NotNil(t, video)
	assert.Equal(t, "v1", video.ID)
	assert.Equal(t, models.ArtifactCompleted, video.Status)
	assert.InDelta(t, 12.5, video.Duration, 0.001)
}

func TestClientErrorMapping(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{code: http.StatusBadRequest, want: pipeline.ErrValidation},
		{code: http.StatusUnprocessableEntity, want: pipeline.ErrValidation},
		{code: http.StatusConflict, want: pipeline.ErrConflict},
		{code: http.StatusNotFound, want: pipeline.ErrNotFound},
		{code: http.StatusBadGateway, want: pipeline.ErrNetwork},
		{code: http.StatusServiceUnavailable, want: pipeline.ErrNetwork},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.code), func(t *testing.T) {
			client := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(t, w, tc.code, map[string]any{"success": false, "error": "boom"})
			})
			_, err := client.GetProject(context.Background(), "p-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Contains(t, err.Error(), "boom")
		})
	}
}

func TestClientUnsuccessfulEnvelope(t *testing.T) {
	client := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusOK, map[string]any{"success": false, "message": "text too long"})
	})
	_, err := client.AnalyzeText(context.Background(), "x")
	assert.ErrorIs(t, err, pipeline.ErrValidation)
	assert.Contains(t, err.Error(), "text too long")
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	client := NewClient(srv.URL, &http.Client{Timeout: time.Second}, discardLogger())

	_, err := client.GenerateAudio(context.Background(), "p-1", nil)
	assert.ErrorIs(t, err, pipeline.ErrNetwork)
}

func TestClientProjectCRUD(t *testing.T) {
	var (
		mu         sync.Mutex
		gotMethods []string
	)
	client := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotMethods = append(gotMethods, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			var in ProjectInput
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "Fox", in.Title)
			writeEnvelope(t, w, http.StatusCreated, map[string]any{
				"success": true,
				"data":    map[string]any{"id": "p-9", "title": in.Title, "textContent": in.TextContent, "status": "draft"},
			})
		case http.MethodPut:
			writeEnvelope(t, w, http.StatusOK, map[string]any{
				"success": true,
				"data":    map[string]any{"id": "p-9", "title": "Fox II"},
			})
		case http.MethodDelete:
			writeEnvelope(t, w, http.StatusOK, map[string]any{"success": true})
		}
	})
	ctx := context.Background()

	p, err := client.CreateProject(ctx, ProjectInput{Title: "Fox", TextContent: "Once"})
	require.NoError(t, err)
	assert.Equal(t, "p-9", p.ID)
	assert.Equal(t, "Once", p.TextContent)

	p, err = client.UpdateProject(ctx, "p-9", map[string]any{"title": "Fox II"})
	require.NoError(t, err)
	assert.Equal(t, "Fox II", p.Title)

	require.NoError(t, client.DeleteProject(ctx, "p-9"))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"POST /api/projects",
		"PUT /api/projects/p-9",
		"DELETE /api/projects/p-9",
	}, gotMethods)
}

func TestClientValidate(t *testing.T) {
	client := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/p-1/validate", r.URL.Path)
		writeEnvelope(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"isValid": true, "confidence": 0.9, "issues": []string{}, "suggestions": []string{"add music"}},
		})
	})
	res, err := client.ValidateGeneration(context.Background(), "p-1")
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, []string{"add music"}, res.Suggestions)
}
