package media

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePhoto(t *testing.T, dir, name string, mod time.Time) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("img"), 0o644))
	require.NoError(t, os.Chtimes(p, mod, mod))
	return p
}

func TestListPhotos_NewestFirstImagesOnly(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writePhoto(t, dir, "old.jpg", base)
	writePhoto(t, dir, "new.PNG", base.Add(time.Hour))
	writePhoto(t, dir, "notes.txt", base.Add(2*time.Hour))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755))

	photos, err := ListPhotos(dir)
	require.NoError(t, err)
	require.Len(t, photos, 2)
	assert.Equal(t, "new.PNG", photos[0].Name)
	assert.Equal(t, "old.jpg", photos[1].Name)
}

func TestGalleryPicker_Pick(t *testing.T) {
	dir := t.TempDir()
	want := writePhoto(t, dir, "dish.jpg", time.Now())

	g := &GalleryPicker{Dir: dir, Choose: func(_ context.Context, photos []Photo) (Photo, error) {
		return photos[0], nil
	}}
	got, err := g.Pick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGalleryPicker_EmptyIsCanceled(t *testing.T) {
	g := &GalleryPicker{Dir: t.TempDir()}
	_, err := g.Pick(context.Background())
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestPickerModel_EnterChoosesSelected(t *testing.T) {
	m := newPickerModel([]Photo{{Path: "/a.jpg", Name: "a.jpg"}, {Path: "/b.jpg", Name: "b.jpg"}})

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	pm := next.(pickerModel)
	require.NotNil(t, pm.chosen)
	assert.Equal(t, "/a.jpg", pm.chosen.Path)
}

func TestPickerModel_EscCancels(t *testing.T) {
	m := newPickerModel([]Photo{{Path: "/a.jpg", Name: "a.jpg"}})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, next.(pickerModel).chosen)
}

func TestCommandCamera(t *testing.T) {
	src := writePhoto(t, t.TempDir(), "frame.jpg", time.Now())
	cam := &CommandCamera{Command: []string{"cp", src, OutputPlaceholder}, Dir: t.TempDir()}

	out, err := cam.Pick(context.Background())
	require.NoError(t, err)
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "img", string(b))
	assert.Equal(t, ".jpg", filepath.Ext(out))
}

func TestCommandCamera_NoOutputIsCanceled(t *testing.T) {
	cam := &CommandCamera{Command: []string{"true"}, Dir: t.TempDir()}
	_, err := cam.Pick(context.Background())
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestCommandCamera_Failure(t *testing.T) {
	cam := &CommandCamera{Command: []string{"false"}, Dir: t.TempDir()}
	_, err := cam.Pick(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCanceled)
}

func TestStaticPermissionsAndNotifier(t *testing.T) {
	perms := StaticPermissions{Camera: true}
	ok, err := perms.Request(context.Background(), Camera)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = perms.Request(context.Background(), MediaLibrary)
	assert.False(t, ok)

	var buf bytes.Buffer
	WriterNotifier{W: &buf}.Notify("hello")
	assert.Equal(t, "hello\n", buf.String())
}
