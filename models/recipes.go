package models

import "time"

type Recipe struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Ingredients []string  `json:"ingredients"`
	OwnerID     string    `json:"owner_id"`
	ImageURL    *string   `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// Complete reports whether the recipe carries every field required before
// it can be stored.
func (r Recipe) Complete() bool {
	return r.Title != "" && r.Description != "" && len(r.Ingredients) > 0
}

// NewRecipe is the input of a create call. ImagePath, when set, is a local
// file that gets uploaded before the record is inserted.
type NewRecipe struct {
	Title       string
	Description string
	Ingredients []string
	OwnerID     string
	ImagePath   string
}

// RecipeChanges is the input of an update call.
type RecipeChanges struct {
	Title       string
	Description string
	Ingredients []string
	Image       ImageInput
}

type ImageAction int

const (
	// ImageKeep leaves the stored image untouched.
	ImageKeep ImageAction = iota
	// ImageReplace uploads a new local file and points the recipe at it.
	ImageReplace
	// ImageClear removes the image reference.
	ImageClear
)

func (a ImageAction) String() string {
	switch a {
	case ImageReplace:
		return "replace"
	case ImageClear:
		return "clear"
	default:
		return "keep"
	}
}

// ImageInput says what an update does with the recipe image. The zero value
// keeps the current image.
type ImageInput struct {
	Action ImageAction
	Path   string
}

func KeepImage() ImageInput { return ImageInput{Action: ImageKeep} }

func ReplaceImage(path string) ImageInput {
	return ImageInput{Action: ImageReplace, Path: path}
}

func ClearImage() ImageInput { return ImageInput{Action: ImageClear} }

// Result is the envelope returned to clients by mutating endpoints.
type Result struct {
	Success bool    `json:"success"`
	Recipe  *Recipe `json:"recipe,omitempty"`
	Error   string  `json:"error,omitempty"`
}
