package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProjectStartsAsDraft(t *testing.T) {
	p := NewProject("Once upon a time...")

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, ProjectStatusDraft, p.Status)
	assert.Equal(t, "Once upon a time...", p.TextContent)
	assert.Empty(t, p.Scenes)
	assert.NotNil(t, p.Scenes)
	assert.Empty(t, p.GeneratedImages)
	assert.Empty(t, p.GeneratedAudio)
	assert.Nil(t, p.FinalVideo)
	assert.Equal(t, 0, p.Progress)
	for _, s := range Stages() {
		assert.Equal(t, StageNotStarted, p.Stages.Get(s), "stage %s", s)
	}
}

func TestReplaceTextResetsDerivedState(t *testing.T) {
	p := NewProject("first")
	p.Status = ProjectStatusCompleted
	p.Progress = 100
	p.Scenes = []Scene{{ID: "s1"}}
	p.GeneratedImages = []GeneratedImage{{ID: "s1", Status: ArtifactCompleted}}
	p.GeneratedAudio = []GeneratedAudio{{ID: "s1", Status: ArtifactCompleted}}
	p.FinalVideo = &GeneratedVideo{ID: "v", Status: ArtifactCompleted}
	p.Stages[StageVideo] = StageCompleted

	next := p.ReplaceText("second")

	assert.Equal(t, p.ID, next.ID)
	assert.Equal(t, "second", next.TextContent)
	assert.Equal(t, ProjectStatusDraft, next.Status)
	assert.Equal(t, 0, next.Progress)
	assert.Empty(t, next.Scenes)
	assert.Empty(t, next.GeneratedImages)
	assert.Empty(t, next.GeneratedAudio)
	assert.Nil(t, next.FinalVideo)
	assert.Equal(t, StageNotStarted, next.Stages.Get(StageVideo))
	assert.Equal(t, p.Epoch+1, next.Epoch)

	// the original snapshot is untouched
	assert.Equal(t, "first", p.TextContent)
	assert.Len(t, p.Scenes, 1)
	assert.Equal(t, StageCompleted, p.Stages.Get(StageVideo))
}

func TestCloneSharesNothing(t *testing.T) {
	p := NewProject("text")
	p.Scenes = []Scene{{ID: "s1", Characters: []string{"alice"}}}
	p.GeneratedImages = []GeneratedImage{{ID: "s1", Status: ArtifactGenerating}}
	p.FinalVideo = &GeneratedVideo{ID: "v", SourceImageIDs: []string{"s1"}}

	cp := p.Clone()
	cp.Scenes[0].Characters[0] = "bob"
	cp.GeneratedImages[0].Status = ArtifactCompleted
	cp.FinalVideo.SourceImageIDs[0] = "other"
	cp.Stages[StageImages] = StageCompleted

	assert.Equal(t, "alice", p.Scenes[0].Characters[0])
	assert.Equal(t, ArtifactGenerating, p.GeneratedImages[0].Status)
	assert.Equal(t, "s1", p.FinalVideo.SourceImageIDs[0])
	assert.Equal(t, StageNotStarted, p.Stages.Get(StageImages))
}

func TestCloneKeepsEmptyCollections(t *testing.T) {
	p := NewProject("Once")
	p.Scenes = NormalizeScenes([]Scene{{Title: "Opening"}})
	p.FinalVideo = &GeneratedVideo{ID: "v1", SourceImageIDs: []string{}}

	next := p.Clone()
	assert.NotNil(t, next.GeneratedImages)
	assert.NotNil(t, next.GeneratedAudio)
	assert.NotNil(t, next.Scenes[0].Characters)
	assert.NotNil(t, next.Scenes[0].Themes)
	assert.NotNil(t, next.FinalVideo.SourceImageIDs)
	assert.Nil(t, next.FinalVideo.SourceAudioIDs)

	data, err := json.Marshal(next)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []any{}, doc["generatedImages"])
	assert.Equal(t, []any{}, doc["generatedAudio"])
	scene := doc["scenes"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{}, scene["characters"])
	assert.Equal(t, []any{}, scene["themes"])
}

func TestProjectDataScan(t *testing.T) {
	p := NewProject("persist me")
	p.Scenes = []Scene{{ID: "s1", Title: "Opening"}}

	v, err := ProjectData(p).Value()
	require.NoError(t, err)

	var got ProjectData
	require.NoError(t, got.Scan(v))
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "persist me", got.TextContent)
	require.Len(t, got.Scenes, 1)
	assert.Equal(t, "Opening", got.Scenes[0].Title)

	assert.Error(t, got.Scan(42))
}

func TestChunksFromScenes(t *testing.T) {
	scenes := NormalizeScenes([]Scene{
		{ID: "a", Content: "The castle", ImagePrompt: "a castle at dusk"},
		{Content: "The forest", Summary: "dark woods"},
	})
	chunks := ChunksFromScenes(scenes)

	require.Len(t, chunks, 2)
	assert.Equal(t, "a", chunks[0].ID)
	assert.Equal(t, "a castle at dusk", chunks[0].ImagePrompt)
	assert.Equal(t, 1, chunks[0].Order)
	assert.NotEmpty(t, chunks[1].ID)
	assert.Equal(t, "dark woods", chunks[1].ImagePrompt)
	assert.Equal(t, "The forest", chunks[1].AudioText)
	assert.Equal(t, SceneImagePending, scenes[1].ImageGenerationStatus)
}

func TestParseStage(t *testing.T) {
	s, ok := ParseStage(" Images ")
	assert.True(t, ok)
	assert.Equal(t, StageImages, s)

	_, ok = ParseStage("subtitles")
	assert.False(t, ok)
}
