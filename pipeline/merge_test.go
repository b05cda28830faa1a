package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StoryToVideo-client/models"
)

func mustFragment(t *testing.T, raw string) Fragment {
	t.Helper()
	f, err := ParseFragment([]byte(raw))
	require.NoError(t, err)
	return f
}

func TestMergeLastWriteWins(t *testing.T) {
	base := models.NewProject("text")
	cases := []struct {
		name  string
		order []string
		want  int
	}{
		{name: "in order", order: []string{`{"progress":40}`, `{"progress":70}`}, want: 70},
		{name: "out of order", order: []string{`{"progress":70}`, `{"progress":40}`}, want: 40},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cur := base
			for _, raw := range tc.order {
				next, err := MergeFragment(cur, mustFragment(t, raw))
				require.NoError(t, err)
				cur = next
			}
			assert.Equal(t, tc.want, cur.Progress)
		})
	}
}

func TestMergeLeavesAbsentFieldsAlone(t *testing.T) {
	cur := completedProject()
	cur.Title = "Fox"

	next, err := MergeFragment(cur, mustFragment(t, `{"description":"updated","unknownField":1}`))
	require.NoError(t, err)
	assert.Equal(t, "updated", next.Description)
	assert.Equal(t, "Fox", next.Title)
	assert.Equal(t, cur.Scenes, next.Scenes)
	assert.Equal(t, cur.GeneratedImages, next.GeneratedImages)
	assert.Equal(t, cur.FinalVideo, next.FinalVideo)
	assert.Empty(t, cur.Description, "current snapshot must not change")
}

func TestMergeReplacesArraysWholesale(t *testing.T) {
	cur := completedProject()

	next, err := MergeFragment(cur, mustFragment(t, `{"generatedImages":[{"id":"s9","url":"http://cdn/s9.png","status":"finished"}]}`))
	require.NoError(t, err)
	require.Len(t, next.GeneratedImages, 1)
	assert.Equal(t, "s9", next.GeneratedImages[0].ID)
	assert.Equal(t, models.ArtifactCompleted, next.GeneratedImages[0].Status)
	assert.Len(t, cur.GeneratedImages, 3)

	next, err = MergeFragment(next, mustFragment(t, `{"generatedAudio":null,"finalVideo":null}`))
	require.NoError(t, err)
	assert.NotNil(t, next.GeneratedAudio)
	assert.Empty(t, next.GeneratedAudio)
	assert.Nil(t, next.FinalVideo)
}

func TestMergeIgnoresID(t *testing.T) {
	cur := models.NewProject("text")
	next, err := MergeFragment(cur, mustFragment(t, `{"id":"other","title":"t"}`))
	require.NoError(t, err)
	assert.Equal(t, cur.ID, next.ID)
	assert.Equal(t, "t", next.Title)
}

func TestMergeTextChangeResetsDerivedState(t *testing.T) {
	cur := completedProject()

	next, err := MergeFragment(cur, mustFragment(t, `{"textContent":"A new story","title":"Rewritten"}`))
	require.NoError(t, err)
	assert.Equal(t, "A new story", next.TextContent)
	assert.Equal(t, "Rewritten", next.Title)
	assert.Empty(t, next.Scenes)
	assert.Empty(t, next.GeneratedImages)
	assert.Nil(t, next.FinalVideo)
	assert.Equal(t, cur.Epoch+1, next.Epoch)

	same, err := MergeFragment(cur, mustFragment(t, `{"textContent":"Once upon a time..."}`))
	require.NoError(t, err)
	assert.Len(t, same.Scenes, 3)
	assert.Equal(t, cur.Epoch, same.Epoch)
}

func TestMergeRejectsBadField(t *testing.T) {
	cur := models.NewProject("text")
	next, err := MergeFragment(cur, mustFragment(t, `{"progress":"lots"}`))
	assert.Error(t, err)
	assert.Equal(t, cur, next)

	_, err = ParseFragment([]byte(`[1,2]`))
	assert.Error(t, err)
}
