package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"StoryToVideo-client/models"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) AnalyzeText(ctx context.Context, text string) ([]models.Scene, error) {
	args := m.Called(ctx, text)
	scenes, _ := args.Get(0).([]models.Scene)
	return scenes, args.Error(1)
}

func (m *mockGenerator) GenerateImages(ctx context.Context, projectID string, chunks []models.TextChunk) ([]models.GeneratedImage, error) {
	args := m.Called(ctx, projectID, chunks)
	images, _ := args.Get(0).([]models.GeneratedImage)
	return images, args.Error(1)
}

func (m *mockGenerator) GenerateAudio(ctx context.Context, projectID string, chunks []models.TextChunk) ([]models.GeneratedAudio, error) {
	args := m.Called(ctx, projectID, chunks)
	audio, _ := args.Get(0).([]models.GeneratedAudio)
	return audio, args.Error(1)
}

func (m *mockGenerator) GenerateVideo(ctx context.Context, projectID string) (*models.GeneratedVideo, error) {
	args := m.Called(ctx, projectID)
	video, _ := args.Get(0).(*models.GeneratedVideo)
	return video, args.Error(1)
}

func (m *mockGenerator) ValidateGeneration(ctx context.Context, projectID string) (models.ValidationResult, error) {
	args := m.Called(ctx, projectID)
	res, _ := args.Get(0).(models.ValidationResult)
	return res, args.Error(1)
}

// chunkID matches a single-chunk fan-out request for id.
func chunkID(id string) interface{} {
	return mock.MatchedBy(func(chunks []models.TextChunk) bool {
		return len(chunks) == 1 && chunks[0].ID == id
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(t *testing.T, gen Generator, policy ReadinessPolicy) (*Orchestrator, *Arena) {
	t.Helper()
	arena := NewArena(NewTracker(policy))
	orch := NewOrchestrator(arena, gen, Options{FanOut: 2, Logger: discardLogger()})
	return orch, arena
}

func threeScenes() []models.Scene {
	return []models.Scene{
		{ID: "s1", Title: "Opening", Content: "Once upon a time"},
		{ID: "s2", Title: "Journey", Content: "the fox set out"},
		{ID: "s3", Title: "Return", Content: "and came home"},
	}
}

func seedProject(t *testing.T, arena *Arena, text string) models.Project {
	t.Helper()
	p := arena.Put(models.NewProject(text))
	require.Equal(t, models.ProjectStatusDraft, p.Status)
	return p
}

// completedProject builds a project whose four stages are all completed.
func completedProject() models.Project {
	p := models.NewProject("Once upon a time...")
	p.Status = models.ProjectStatusProcessing
	p.Scenes = models.NormalizeScenes(threeScenes())
	for i, s := range p.Scenes {
		p.GeneratedImages = append(p.GeneratedImages, models.GeneratedImage{
			ID: s.ID, URL: "http://cdn/" + s.ID + ".png", Prompt: s.Content, Order: i + 1, Status: models.ArtifactCompleted,
		})
		p.GeneratedAudio = append(p.GeneratedAudio, models.GeneratedAudio{
			ID: s.ID, URL: "http://cdn/" + s.ID + ".mp3", Text: s.Content, Duration: 2.5, Status: models.ArtifactCompleted,
		})
	}
	p.FinalVideo = &models.GeneratedVideo{
		ID:             "v1",
		URL:            "http://cdn/v1.mp4",
		Duration:       7.5,
		Status:         models.ArtifactCompleted,
		SourceImageIDs: []string{"s1", "s2"},
		SourceAudioIDs: []string{"s1", "s2", "s3"},
	}
	return p
}
