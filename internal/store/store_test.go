package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fixedClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := openTestStore(t)

	version, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0002_workspace_usage", version)

	// reapplying is a no-op
	require.NoError(t, s.applyMigrations(context.Background()))
}

func TestAssetsRoundTripNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.now = fixedClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	first, err := s.SaveAsset(ctx, Asset{ImageDataURI: "data:image/png;base64,AAAA", Prompt: "first"})
	require.NoError(t, err)
	second, err := s.SaveAsset(ctx, Asset{ImageDataURI: "data:image/png;base64,BBBB", Kind: AssetLogo, Title: "logo"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.Equal(t, AssetGenerated, first.Kind)

	all, err := s.ListAssets(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)
	assert.Equal(t, "first", all[1].Prompt)

	logos, err := s.ListAssets(ctx, AssetLogo)
	require.NoError(t, err)
	require.Len(t, logos, 1)
	assert.Equal(t, "logo", logos[0].Title)

	got, err := s.GetAsset(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first, *got)

	require.NoError(t, s.DeleteAsset(ctx, first.ID))
	got, err = s.GetAsset(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// deleting again is fine
	require.NoError(t, s.DeleteAsset(ctx, first.ID))
}

func TestSaveAssetRejectsEmptyImage(t *testing.T) {
	s := openTestStore(t)
	_, err := s.SaveAsset(context.Background(), Asset{})
	assert.Error(t, err)
}

func TestParseAssetKind(t *testing.T) {
	kind, err := ParseAssetKind(" Upload ")
	require.NoError(t, err)
	assert.Equal(t, AssetUpload, kind)

	kind, err = ParseAssetKind("")
	require.NoError(t, err)
	assert.Equal(t, AssetKind(""), kind)

	_, err = ParseAssetKind("video")
	assert.Error(t, err)
}

func TestCustomSubjects(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.now = fixedClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	sub, err := s.SaveCustomSubject(ctx, Subject{Name: "Rara", ThumbnailDataURI: "data:image/png;base64,AAAA"})
	require.NoError(t, err)

	updated, err := s.UpdateCustomSubject(ctx, sub.ID, "Rara Putri", "")
	require.NoError(t, err)
	assert.Equal(t, "Rara Putri", updated.Name)
	assert.Equal(t, "data:image/png;base64,AAAA", updated.ThumbnailDataURI)

	_, err = s.UpdateCustomSubject(ctx, "missing", "x", "")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListCustomSubjects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteCustomSubject(ctx, sub.ID))
	got, err := s.GetCustomSubject(ctx, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSubjectThumbnails(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, ok, err := s.SubjectThumbnail(ctx, "m7")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveSubjectThumbnail(ctx, "m7", "data:image/png;base64,AAAA"))
	require.NoError(t, s.SaveSubjectThumbnail(ctx, "m7", "data:image/png;base64,BBBB"))

	data, ok, err := s.SubjectThumbnail(ctx, "m7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "data:image/png;base64,BBBB", data)

	all, err := s.SubjectThumbnails(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"m7": "data:image/png;base64,BBBB"}, all)
}

func TestWorkspaceDraftVersionGuard(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	missing, err := s.LoadWorkspaceDraft(ctx, "character-studio")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.SaveWorkspaceDraft(ctx, "character-studio", []byte(`{"v":2}`), 2))
	err = s.SaveWorkspaceDraft(ctx, "character-studio", []byte(`{"v":1}`), 1)
	assert.ErrorIs(t, err, ErrStaleDraft)

	draft, err := s.LoadWorkspaceDraft(ctx, "character-studio")
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, int64(2), draft.Version)
	assert.JSONEq(t, `{"v":2}`, string(draft.Data))

	require.NoError(t, s.SaveWorkspaceDraft(ctx, "character-studio", []byte(`{"v":3}`), 3))
	draft, err = s.LoadWorkspaceDraft(ctx, "character-studio")
	require.NoError(t, err)
	assert.Equal(t, int64(3), draft.Version)

	require.NoError(t, s.DeleteWorkspaceDraft(ctx, "character-studio"))
	draft, err = s.LoadWorkspaceDraft(ctx, "character-studio")
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestUsageCounter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	used, err := s.Count(ctx, "gelap_usage_2026-03-01")
	require.NoError(t, err)
	assert.Zero(t, used)

	for i := 1; i <= 3; i++ {
		used, err = s.Increment(ctx, "gelap_usage_2026-03-01")
		require.NoError(t, err)
		assert.Equal(t, i, used)
	}

	used, err = s.Count(ctx, "gelap_usage_2026-03-02")
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestUsageCounterPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.Increment(ctx, "gelap_usage_2026-03-01")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	used, err := s.Count(ctx, "gelap_usage_2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 1, used)
}
