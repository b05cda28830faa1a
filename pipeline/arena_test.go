package pipeline

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StoryToVideo-client/models"
)

func TestArenaSnapshotsAreIsolated(t *testing.T) {
	arena := NewArena(NewTracker(ReadinessAll))
	p := arena.Put(completedProject())

	got, ok := arena.Get(p.ID)
	require.True(t, ok)
	got.Scenes[0].Title = "mutated"
	got.GeneratedImages[0].URL = ""

	again, _ := arena.Get(p.ID)
	assert.Equal(t, "Opening", again.Scenes[0].Title)
	assert.NotEmpty(t, again.GeneratedImages[0].URL)
}

func TestArenaUpdateRecomputesDerivedFields(t *testing.T) {
	arena := NewArena(NewTracker(ReadinessAll))
	p := arena.Put(models.NewProject("text"))

	next, err := arena.Update(p.ID, func(p models.Project) (models.Project, error) {
		p.Scenes = threeScenes()
		p.Progress = 99
		p.ID = "hijacked"
		return p, nil
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, next.ID)
	assert.Equal(t, WeightAnalysis, next.Progress)
	assert.Equal(t, models.StageCompleted, next.Stages[models.StageAnalysis])
}

func TestArenaUpdateErrorWritesNothing(t *testing.T) {
	arena := NewArena(NewTracker(ReadinessAll))
	p := arena.Put(models.NewProject("text"))
	boom := errors.New("boom")

	_, err := arena.Update(p.ID, func(p models.Project) (models.Project, error) {
		p.Title = "changed"
		return p, boom
	})
	require.ErrorIs(t, err, boom)
	snap, _ := arena.Get(p.ID)
	assert.Empty(t, snap.Title)

	_, err = arena.Update("missing", func(p models.Project) (models.Project, error) { return p, nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArenaWatchDeliversLatest(t *testing.T) {
	arena := NewArena(NewTracker(ReadinessAll))
	p := arena.Put(models.NewProject("text"))

	ch, cancel := arena.Watch(p.ID)
	defer cancel()
	first := <-ch
	assert.Equal(t, p.ID, first.ID)

	for _, title := range []string{"one", "two", "three"} {
		_, err := arena.Update(p.ID, func(p models.Project) (models.Project, error) {
			p.Title = title
			return p, nil
		})
		require.NoError(t, err)
	}
	latest := <-ch
	assert.Equal(t, "three", latest.Title)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestArenaDeleteClosesWatchers(t *testing.T) {
	arena := NewArena(NewTracker(ReadinessAll))
	p := arena.Put(models.NewProject("text"))
	ch, cancel := arena.Watch(p.ID)
	<-ch

	assert.True(t, arena.Delete(p.ID))
	_, open := <-ch
	assert.False(t, open)
	cancel()

	assert.False(t, arena.Delete(p.ID))
	assert.Empty(t, arena.IDs())
}

func TestArenaHooksSeeWritesInOrder(t *testing.T) {
	arena := NewArena(NewTracker(ReadinessAll))
	var (
		mu     sync.Mutex
		titles []string
	)
	arena.OnReplace(func(p models.Project) {
		mu.Lock()
		titles = append(titles, p.Title)
		mu.Unlock()
	})
	p := models.NewProject("text")
	p.Title = "zero"
	arena.Put(p)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = arena.Update(p.ID, func(p models.Project) (models.Project, error) {
				p.Title = p.Title + "."
				return p, nil
			})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, titles, 21)
	for i := 1; i < len(titles); i++ {
		assert.Len(t, titles[i], len(titles[i-1])+1)
	}
}
