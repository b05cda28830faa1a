package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StoryToVideo-client/models"
	"StoryToVideo-client/pipeline"
)

func writeTestConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`api:
  base_url: %s
  push_url: ws://127.0.0.1:1/ws
  timeout_seconds: 5
log:
  level: error
`, baseURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newFakeService(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var data any
		switch r.URL.Path {
		case "/api/projects/p-1":
			data = map[string]any{"id": "p-1", "title": "Fox", "textContent": "Once upon a time", "status": "draft"}
		case "/api/analyze-text":
			data = map[string]any{"scenes": []map[string]any{
				{"id": "s1", "title": "Opening", "content": "Once upon a time"},
				{"id": "s2", "title": "Journey", "content": "the fox set out"},
			}}
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRenderTable(t *testing.T) {
	columns := []tableColumn{
		{Header: "Stage", Align: text.AlignLeft},
		{Header: "Status", Align: text.AlignLeft, Status: true},
		{Header: "Artifacts", Align: text.AlignRight},
	}
	out := renderTable(columns,
		[][]string{{"images", "in_flight", "2/3"}, {"video", "completed"}, {"audio", "paused"}},
		[]string{"Progress", "", "42%"},
	)
	assert.Contains(t, out, "STAGE", "StyleRounded upper-cases headers")
	assert.Contains(t, out, "ARTIFACTS")
	assert.Contains(t, out, "images")
	assert.Contains(t, out, "… in_flight")
	assert.Contains(t, out, "✓ completed")
	assert.Contains(t, out, "paused")
	assert.NotContains(t, out, "✗")
	assert.Contains(t, out, "2/3")
	assert.Contains(t, out, "42%")
	assert.Equal(t, "", renderTable(nil, nil, nil))

	plain := renderTable(columns[:1], [][]string{{"analysis"}}, nil)
	assert.NotContains(t, plain, "PROGRESS")
}

func TestStageRows(t *testing.T) {
	tracker := pipeline.NewTracker(pipeline.ReadinessAll)
	p := models.NewProject("Once")
	p.Scenes = []models.Scene{{ID: "s1"}, {ID: "s2"}}
	p.GeneratedImages = []models.GeneratedImage{
		{ID: "s1", Status: models.ArtifactCompleted, URL: "http://cdn/s1.png"},
		{ID: "s2", Status: models.ArtifactGenerating},
	}
	p = tracker.Refresh(p)

	rows := stageRows(tracker, p)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"analysis", "completed", "2 scenes", "no", "yes"}, rows[0])
	assert.Equal(t, "images", rows[1][0])
	assert.Equal(t, "in_flight", rows[1][1])
	assert.Equal(t, "1/2", rows[1][2])
	assert.Equal(t, "-", rows[3][2])
}

func TestStagesCommandSkipsConfig(t *testing.T) {
	out, err := execute(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"), "stages")
	require.NoError(t, err)
	assert.Equal(t, "analysis\nimages\naudio\nvideo\n", out)
}

func TestShowCommand(t *testing.T) {
	srv := newFakeService(t)
	cfgPath := writeTestConfig(t, srv.URL+"/api")

	out, err := execute(t, "-c", cfgPath, "show", "p-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Project:  p-1")
	assert.Contains(t, out, "Title:    Fox")
	assert.Contains(t, out, "0%")
	assert.Contains(t, out, "· not_started")

	_, err = execute(t, "-c", cfgPath, "show", "p-2")
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestRunCommandAnalysis(t *testing.T) {
	srv := newFakeService(t)
	cfgPath := writeTestConfig(t, srv.URL+"/api")

	out, err := execute(t, "-c", cfgPath, "run", "p-1", "analysis", "--wait", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "10%")
	assert.Contains(t, out, "2 scenes")
	assert.True(t, strings.Contains(out, "completed"), out)
}

func TestRunCommandRejectsUnknownStage(t *testing.T) {
	srv := newFakeService(t)
	cfgPath := writeTestConfig(t, srv.URL+"/api")

	_, err := execute(t, "-c", cfgPath, "run", "p-1", "subtitles")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}

func TestMissingConfigFails(t *testing.T) {
	_, err := execute(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"), "show", "p-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
