package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"recipeshare_backend/backend"
	"recipeshare_backend/media"
	"recipeshare_backend/models"
)

func TestMain(m *testing.M) {
	// The Google client libraries linked through backend start an opencensus
	// stats worker at init that runs for the life of the process.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// flakyRecords fails the operations whose error is set.
type flakyRecords struct {
	*backend.MemoryStore
	selectErr error
	updateErr func(fields backend.Record) error
}

func (f *flakyRecords) Select(ctx context.Context, table string, q backend.Query) ([]backend.Record, error) {
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.MemoryStore.Select(ctx, table, q)
}

func (f *flakyRecords) Update(ctx context.Context, table, id string, fields backend.Record) (backend.Record, error) {
	if f.updateErr != nil {
		if err := f.updateErr(fields); err != nil {
			return nil, err
		}
	}
	return f.MemoryStore.Update(ctx, table, id, fields)
}

// countingObjects records every call made against the object store.
type countingObjects struct {
	*backend.MemoryObjectStore
	uploads   int
	removes   []string
	uploadErr error
	removeErr error
}

func (c *countingObjects) Upload(ctx context.Context, bucket, key string, data []byte, ct string) error {
	c.uploads++
	if c.uploadErr != nil {
		return c.uploadErr
	}
	return c.MemoryObjectStore.Upload(ctx, bucket, key, data, ct)
}

func (c *countingObjects) Remove(ctx context.Context, bucket, key string) error {
	c.removes = append(c.removes, key)
	if c.removeErr != nil {
		return c.removeErr
	}
	return c.MemoryObjectStore.Remove(ctx, bucket, key)
}

type fixture struct {
	uc      *Recipes
	records *flakyRecords
	objects *countingObjects
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := backend.NewMemoryStore()
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mem.Now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	records := &flakyRecords{MemoryStore: mem}
	objects := &countingObjects{MemoryObjectStore: backend.NewMemoryObjectStore("https://cdn.test")}

	images := NewImages(objects, "", zap.NewNop())
	tick := time.UnixMilli(1700000000000)
	images.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}

	return &fixture{
		uc:      New(records, images, media.Device{}, zap.NewNop()),
		records: records,
		objects: objects,
		dir:     t.TempDir(),
	}
}

func (f *fixture) photo(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(p, []byte("fake image bytes"), 0o644))
	return p
}

func salad() models.NewRecipe {
	return models.NewRecipe{
		Title:       "Salad",
		Description: "Simple salad",
		Ingredients: []string{"lettuce", "tomato"},
		OwnerID:     "chef-1",
	}
}

func TestCreateThenListIncludesRecipeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.uc.Create(ctx, models.NewRecipe{Title: "Soup", Description: "Hot", Ingredients: []string{"water"}, OwnerID: "chef-2"})
	require.NoError(t, err)
	created, err := f.uc.Create(ctx, salad())
	require.NoError(t, err)

	list := f.uc.List(ctx)
	var seen int
	for _, r := range list {
		if r.ID == created.ID {
			seen++
		}
	}
	assert.Equal(t, 1, seen)

	want := []models.Recipe{created, other}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Errorf("List() mismatch, newest first expected (-want +got):\n%s", diff)
	}
}

func TestCreateWithImage(t *testing.T) {
	f := newFixture(t)

	created, err := f.uc.Create(context.Background(), models.NewRecipe{
		Title: "Pie", Description: "Apple pie", Ingredients: []string{"apple"}, OwnerID: "chef-1",
		ImagePath: f.photo(t, "pie.JPG"),
	})
	require.NoError(t, err)
	require.NotNil(t, created.ImageURL)
	assert.Equal(t, "https://cdn.test/recipe-photos/1700000000001.jpg", *created.ImageURL)

	data, ct, ok := f.objects.Object(DefaultBucket, "1700000000001.jpg")
	require.True(t, ok)
	assert.Equal(t, "fake image bytes", string(data))
	assert.Equal(t, "image/jpeg", ct)
}

func TestCreateUploadFailureStoresWithoutImage(t *testing.T) {
	f := newFixture(t)
	f.objects.uploadErr = errors.New("bucket unavailable")

	in := salad()
	in.ImagePath = f.photo(t, "salad.png")
	created, err := f.uc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, created.ImageURL)
	assert.Equal(t, 1, f.objects.uploads)
}

func TestListSwallowsBackendFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.Create(context.Background(), salad())
	require.NoError(t, err)

	f.records.selectErr = errors.New("backend down")
	assert.Empty(t, f.uc.List(context.Background()))
	assert.NotNil(t, f.uc.List(context.Background()))
	assert.Empty(t, f.uc.SearchByIngredient(context.Background(), "tomato"))
}

func TestSearchByIngredientExactMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mk := func(title string, ings ...string) models.Recipe {
		r, err := f.uc.Create(ctx, models.NewRecipe{Title: title, Description: "d", Ingredients: ings, OwnerID: "c"})
		require.NoError(t, err)
		return r
	}
	a := mk("a", "tomato", "onion")
	mk("b", "Tomato")
	mk("c", "tomatoes")
	d := mk("d", "basil", "tomato")

	got := f.uc.SearchByIngredient(ctx, "tomato")
	require.Len(t, got, 2)
	assert.Equal(t, d.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
	for _, r := range got {
		assert.Contains(t, r.Ingredients, "tomato")
	}
}

func TestUpdateKeepNeverChangesImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := salad()
	in.ImagePath = f.photo(t, "salad.png")
	created, err := f.uc.Create(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, created.ImageURL)

	updated, err := f.uc.Update(ctx, created.ID, models.RecipeChanges{
		Title: "Big salad", Description: "More salad", Ingredients: []string{"lettuce"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Big salad", updated.Title)
	assert.Equal(t, []string{"lettuce"}, updated.Ingredients)
	require.NotNil(t, updated.ImageURL)
	assert.Equal(t, *created.ImageURL, *updated.ImageURL)
	assert.Equal(t, 1, f.objects.uploads)
	assert.Empty(t, f.objects.removes)

	stored, err := f.uc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ImageURL, stored.ImageURL)
}

func TestUpdateClearRemovesPriorImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := salad()
	in.ImagePath = f.photo(t, "salad.png")
	created, err := f.uc.Create(ctx, in)
	require.NoError(t, err)

	updated, err := f.uc.Update(ctx, created.ID, models.RecipeChanges{
		Title: in.Title, Description: in.Description, Ingredients: in.Ingredients, Image: models.ClearImage(),
	})
	require.NoError(t, err)
	assert.Nil(t, updated.ImageURL)
	assert.Equal(t, []string{"1700000000001.png"}, f.objects.removes)
	assert.Equal(t, 0, f.objects.Len())

	stored, err := f.uc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ImageURL)
}

func TestUpdateLogsImageAction(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zap.DebugLevel)
	f.uc.log = zap.New(core)
	ctx := context.Background()
	created, err := f.uc.Create(ctx, salad())
	require.NoError(t, err)

	_, err = f.uc.Update(ctx, created.ID, models.RecipeChanges{
		Title: "Salad", Description: "Simple salad", Ingredients: []string{"lettuce"}, Image: models.ClearImage(),
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("Updating recipe").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "clear", entries[0].ContextMap()["image"])
}

func TestUpdateClearToleratesRemovalFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := salad()
	in.ImagePath = f.photo(t, "salad.png")
	created, err := f.uc.Create(ctx, in)
	require.NoError(t, err)

	f.objects.removeErr = errors.New("permission denied")
	updated, err := f.uc.Update(ctx, created.ID, models.RecipeChanges{
		Title: in.Title, Description: in.Description, Ingredients: in.Ingredients, Image: models.ClearImage(),
	})
	require.NoError(t, err)
	assert.Nil(t, updated.ImageURL)
	assert.Len(t, f.objects.removes, 1)
}

func TestUpdateReplaceSwapsImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := salad()
	in.ImagePath = f.photo(t, "old.png")
	created, err := f.uc.Create(ctx, in)
	require.NoError(t, err)

	updated, err := f.uc.Update(ctx, created.ID, models.RecipeChanges{
		Title: in.Title, Description: in.Description, Ingredients: in.Ingredients,
		Image: models.ReplaceImage(f.photo(t, "new.webp")),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.ImageURL)
	assert.Equal(t, "https://cdn.test/recipe-photos/1700000000002.webp", *updated.ImageURL)
	assert.Equal(t, []string{"1700000000001.png"}, f.objects.removes)

	_, _, ok := f.objects.Object(DefaultBucket, "1700000000002.webp")
	assert.True(t, ok)
}

func TestUpdateReplaceUploadFailureLeavesImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := salad()
	in.ImagePath = f.photo(t, "old.png")
	created, err := f.uc.Create(ctx, in)
	require.NoError(t, err)

	f.objects.uploadErr = errors.New("quota exceeded")
	_, err = f.uc.Update(ctx, created.ID, models.RecipeChanges{
		Title: "Changed", Description: in.Description, Ingredients: in.Ingredients,
		Image: models.ReplaceImage(f.photo(t, "new.png")),
	})
	require.ErrorIs(t, err, ErrUpload)
	assert.NotEmpty(t, err.Error())

	stored, err := f.uc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ImageURL, stored.ImageURL)
	assert.Equal(t, "Salad", stored.Title)
	assert.Empty(t, f.objects.removes)
}

func TestUpdateReplaceWithoutExtensionFails(t *testing.T) {
	f := newFixture(t)
	created, err := f.uc.Create(context.Background(), salad())
	require.NoError(t, err)

	_, err = f.uc.Update(context.Background(), created.ID, models.RecipeChanges{
		Title: "x", Description: "y", Ingredients: []string{"z"},
		Image: models.ReplaceImage(f.photo(t, "noext")),
	})
	assert.ErrorIs(t, err, ErrUpload)
	assert.Equal(t, 0, f.objects.uploads)
}

func TestUpdateClearWithoutPriorImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.uc.Create(ctx, salad())
	require.NoError(t, err)

	updated, err := f.uc.Update(ctx, created.ID, models.RecipeChanges{
		Title: "Salad", Description: "Simple salad", Ingredients: []string{"lettuce", "tomato"},
		Image: models.ClearImage(),
	})
	require.NoError(t, err)
	assert.Nil(t, updated.ImageURL)
	assert.Equal(t, 0, f.objects.uploads)
	assert.Empty(t, f.objects.removes)
}

func TestUpdateWriteFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.uc.Create(ctx, salad())
	require.NoError(t, err)

	f.records.updateErr = func(backend.Record) error { return errors.New("write rejected") }
	_, err = f.uc.Update(ctx, created.ID, models.RecipeChanges{Title: "a", Description: "b", Ingredients: []string{"c"}})
	require.ErrorIs(t, err, ErrWrite)
	assert.Contains(t, err.Error(), "updating fields")

	f.records.updateErr = func(fields backend.Record) error {
		if _, ok := fields[fieldImageURL]; ok {
			return errors.New("write rejected")
		}
		return nil
	}
	_, err = f.uc.Update(ctx, created.ID, models.RecipeChanges{
		Title: "a", Description: "b", Ingredients: []string{"c"}, Image: models.ReplaceImage(f.photo(t, "p.png")),
	})
	require.ErrorIs(t, err, ErrWrite)
	assert.Contains(t, err.Error(), "updating image")
}

func TestUpdateMissingRecipe(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.Update(context.Background(), "missing", models.RecipeChanges{Title: "a", Description: "b", Ingredients: []string{"c"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteLeavesImageInStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := salad()
	in.ImagePath = f.photo(t, "salad.png")
	created, err := f.uc.Create(ctx, in)
	require.NoError(t, err)

	require.NoError(t, f.uc.Delete(ctx, created.ID))
	assert.Empty(t, f.uc.List(ctx))
	assert.Equal(t, 1, f.objects.Len())

	assert.ErrorIs(t, f.uc.Delete(ctx, created.ID), ErrNotFound)
}

func TestSaladExample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.uc.Create(ctx, salad())
	require.NoError(t, err)

	updated, err := f.uc.Update(ctx, created.ID, models.RecipeChanges{
		Title: "Salad", Description: "Simple salad", Ingredients: []string{"lettuce", "tomato"},
		Image: models.ClearImage(),
	})
	require.NoError(t, err)

	want := created
	if diff := cmp.Diff(want, updated, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Update() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, f.objects.uploads)
	assert.Empty(t, f.objects.removes)
}
