package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".heic": true,
}

type Photo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// ListPhotos returns the image files directly under dir, newest first.
func ListPhotos(dir string) ([]Photo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read gallery %s: %w", dir, err)
	}

	var photos []Photo
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		photos = append(photos, Photo{
			Path:    filepath.Join(dir, e.Name()),
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.SliceStable(photos, func(i, j int) bool {
		return photos[i].ModTime.After(photos[j].ModTime)
	})
	return photos, nil
}

// GalleryPicker lets the user choose one of the photos in Dir.
type GalleryPicker struct {
	Dir string
	// Choose presents the photos and returns the chosen one. Defaults to an
	// interactive terminal list.
	Choose func(ctx context.Context, photos []Photo) (Photo, error)
}

func NewGalleryPicker(dir string) *GalleryPicker {
	return &GalleryPicker{Dir: dir, Choose: chooseInTerminal}
}

func (g *GalleryPicker) Pick(ctx context.Context) (string, error) {
	photos, err := ListPhotos(g.Dir)
	if err != nil {
		return "", err
	}
	if len(photos) == 0 {
		return "", fmt.Errorf("no photos in %s: %w", g.Dir, ErrCanceled)
	}

	choose := g.Choose
	if choose == nil {
		choose = chooseInTerminal
	}
	p, err := choose(ctx, photos)
	if err != nil {
		return "", err
	}
	return p.Path, nil
}

var docStyle = lipgloss.NewStyle().Margin(1, 2)

type photoItem struct {
	photo Photo
}

func (i photoItem) Title() string { return i.photo.Name }

func (i photoItem) Description() string {
	return fmt.Sprintf("%s, %s", humanize.Bytes(uint64(i.photo.Size)), humanize.Time(i.photo.ModTime))
}

func (i photoItem) FilterValue() string { return i.photo.Name }

type pickerModel struct {
	list   list.Model
	chosen *Photo
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "enter":
			if it, ok := m.list.SelectedItem().(photoItem); ok {
				p := it.photo
				m.chosen = &p
			}
			return m, tea.Quit
		case "esc", "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	return docStyle.Render(m.list.View())
}

func newPickerModel(photos []Photo) pickerModel {
	items := make([]list.Item, len(photos))
	for i, p := range photos {
		items[i] = photoItem{photo: p}
	}
	l := list.New(items, list.NewDefaultDelegate(), 80, 20)
	l.Title = "Choose a photo"
	return pickerModel{list: l}
}

func chooseInTerminal(ctx context.Context, photos []Photo) (Photo, error) {
	p := tea.NewProgram(newPickerModel(photos), tea.WithContext(ctx), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Photo{}, fmt.Errorf("gallery picker: %w", err)
	}
	m, ok := final.(pickerModel)
	if !ok || m.chosen == nil {
		return Photo{}, ErrCanceled
	}
	return *m.chosen, nil
}
