package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StoryToVideo-client/models"
)

func images(statuses ...string) []models.GeneratedImage {
	out := make([]models.GeneratedImage, len(statuses))
	for i, s := range statuses {
		out[i] = models.GeneratedImage{ID: string(rune('a' + i)), Status: s}
	}
	return out
}

func audio(statuses ...string) []models.GeneratedAudio {
	out := make([]models.GeneratedAudio, len(statuses))
	for i, s := range statuses {
		out[i] = models.GeneratedAudio{ID: string(rune('a' + i)), Status: s}
	}
	return out
}

func TestParseReadinessPolicy(t *testing.T) {
	p, err := ParseReadinessPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ReadinessAll, p)

	p, err = ParseReadinessPolicy(" ANY ")
	require.NoError(t, err)
	assert.Equal(t, ReadinessAny, p)

	_, err = ParseReadinessPolicy("most")
	assert.Error(t, err)
}

func TestCollectionStatus(t *testing.T) {
	const (
		gen  = models.ArtifactGenerating
		done = models.ArtifactCompleted
		bad  = models.ArtifactError
	)
	cases := []struct {
		name     string
		statuses []string
		stored   models.StageStatus
		want     models.StageStatus
	}{
		{name: "empty", want: models.StageNotStarted},
		{name: "empty keeps stored in flight", stored: models.StageInFlight, want: models.StageInFlight},
		{name: "empty keeps stored failure", stored: models.StageFailed, want: models.StageFailed},
		{name: "empty ignores stored completed", stored: models.StageCompleted, want: models.StageNotStarted},
		{name: "one pending", statuses: []string{done, gen, bad}, want: models.StageInFlight},
		{name: "partial failure", statuses: []string{done, bad, done}, want: models.StageCompleted},
		{name: "all failed", statuses: []string{bad, bad}, want: models.StageFailed},
		{name: "all done", statuses: []string{done}, want: models.StageCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, collectionStatus(tc.statuses, tc.stored))
		})
	}
}

func TestTrackerOutOfOrderCompletion(t *testing.T) {
	tr := NewTracker(ReadinessAll)
	p := models.NewProject("text")
	p.Scenes = models.NormalizeScenes(threeScenes())
	p.GeneratedImages = images(models.ArtifactGenerating, models.ArtifactGenerating, models.ArtifactGenerating)

	for _, i := range []int{2, 0} {
		p.GeneratedImages[i].Status = models.ArtifactCompleted
		assert.Equal(t, models.StageInFlight, tr.Status(p, models.StageImages))
	}
	p.GeneratedImages[1].Status = models.ArtifactError
	assert.Equal(t, models.StageCompleted, tr.Status(p, models.StageImages))
}

func TestTrackerPreconditions(t *testing.T) {
	tr := NewTracker(ReadinessAll)
	p := models.NewProject("")

	assert.False(t, tr.CanRun(p, models.StageAnalysis))
	p.TextContent = "Once upon a time"
	assert.True(t, tr.CanRun(p, models.StageAnalysis))
	assert.False(t, tr.CanRun(p, models.StageImages))
	assert.False(t, tr.CanRun(p, models.StageAudio))

	p.Scenes = models.NormalizeScenes(threeScenes())
	assert.True(t, tr.CanRun(p, models.StageImages))
	assert.True(t, tr.CanRun(p, models.StageAudio))
	assert.False(t, tr.CanRun(p, models.StageVideo))

	p.GeneratedImages = images(models.ArtifactCompleted)
	p.GeneratedAudio = audio(models.ArtifactCompleted)
	assert.True(t, tr.CanRun(p, models.StageVideo))

	p.GeneratedImages = images(models.ArtifactCompleted, models.ArtifactGenerating)
	err := tr.CheckRun(p, models.StageImages)
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, tr.CheckRun(p, models.StageVideo), ErrValidation)
}

func TestVideoReadinessPolicy(t *testing.T) {
	p := models.NewProject("text")
	p.Scenes = models.NormalizeScenes(threeScenes())
	p.GeneratedImages = images(models.ArtifactCompleted, models.ArtifactError)
	p.GeneratedAudio = audio(models.ArtifactCompleted, models.ArtifactCompleted)

	assert.False(t, NewTracker(ReadinessAll).VideoReady(p))
	assert.True(t, NewTracker(ReadinessAny).VideoReady(p))

	p.GeneratedAudio = audio(models.ArtifactError)
	assert.False(t, NewTracker(ReadinessAny).VideoReady(p))
}

func TestDeriveStatus(t *testing.T) {
	tr := NewTracker(ReadinessAll)

	p := models.NewProject("text")
	assert.Equal(t, models.ProjectStatusDraft, tr.DeriveStatus(p))

	p.Stages[models.StageAnalysis] = models.StageInFlight
	assert.Equal(t, models.ProjectStatusProcessing, tr.DeriveStatus(p))

	p.Stages[models.StageAnalysis] = models.StageFailed
	assert.Equal(t, models.ProjectStatusError, tr.DeriveStatus(p))

	done := completedProject()
	assert.Equal(t, models.ProjectStatusCompleted, tr.DeriveStatus(done))
	done.GeneratedImages[0].Status = models.ArtifactGenerating
	assert.Equal(t, models.ProjectStatusProcessing, tr.DeriveStatus(done))
}

func TestRefreshMovesPendingVideoIntoStage(t *testing.T) {
	tr := NewTracker(ReadinessAll)
	p := completedProject()
	p.FinalVideo.Status = models.ArtifactGenerating
	stored := p.Stages

	next := tr.Refresh(p)
	assert.Nil(t, next.FinalVideo)
	assert.Equal(t, models.StageInFlight, next.Stages[models.StageVideo])
	assert.Equal(t, models.ProjectStatusProcessing, next.Status)
	assert.Equal(t, 80, next.Progress)
	assert.Equal(t, models.StageNotStarted, stored[models.StageVideo], "refresh must not write through to the caller's stage map")
}

func TestCapabilities(t *testing.T) {
	tr := NewTracker(ReadinessAll)
	caps := tr.Capabilities(completedProject())
	require.Len(t, caps, 4)
	for stage, c := range caps {
		assert.Equal(t, models.StageCompleted, c.Status, stage)
		assert.True(t, c.CanRegenerate, stage)
	}
}

func TestComputeProgress(t *testing.T) {
	cases := []struct {
		name  string
		build func(p *models.Project)
		want  int
	}{
		{name: "draft", build: func(*models.Project) {}, want: 0},
		{name: "analysis only", build: func(p *models.Project) {
			p.Scenes = threeScenes()
		}, want: 10},
		{name: "one of three images", build: func(p *models.Project) {
			p.Scenes = threeScenes()
			p.GeneratedImages = images(models.ArtifactCompleted, models.ArtifactGenerating, models.ArtifactError)
		}, want: 23},
		{name: "images and two of three audio", build: func(p *models.Project) {
			p.Scenes = threeScenes()
			p.GeneratedImages = images(models.ArtifactCompleted, models.ArtifactCompleted, models.ArtifactCompleted)
			p.GeneratedAudio = audio(models.ArtifactCompleted, models.ArtifactCompleted, models.ArtifactGenerating)
		}, want: 70},
		{name: "floored once over the sum", build: func(p *models.Project) {
			p.Scenes = threeScenes()
			p.GeneratedImages = images(models.ArtifactCompleted, models.ArtifactCompleted, models.ArtifactError)
			p.GeneratedAudio = audio(
				models.ArtifactCompleted, models.ArtifactCompleted, models.ArtifactCompleted, models.ArtifactCompleted,
				models.ArtifactError, models.ArtifactError, models.ArtifactError, models.ArtifactError, models.ArtifactError,
			)
		}, want: 50},
		{name: "complete", build: func(p *models.Project) {
			*p = completedProject()
		}, want: 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := models.NewProject("text")
			tc.build(&p)
			assert.Equal(t, tc.want, ComputeProgress(p))
		})
	}
}
