// Package usecase turns user intent (list, search, create, edit, delete
// recipes; pick a photo) into calls on the injected backend clients.
//
// Nothing is cached between calls: the record store is the only source of
// truth, and every method is an independent round trip.
package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"recipeshare_backend/backend"
	"recipeshare_backend/media"
	"recipeshare_backend/models"
)

// Table holds recipe records.
const Table = "recipes"

const (
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldIngredients = "ingredients"
	fieldOwnerID     = "owner_id"
	fieldImageURL    = "image_url"
)

var (
	ErrNotFound = errors.New("recipe not found")
	ErrRead     = errors.New("could not read recipes")
	ErrWrite    = errors.New("could not save recipe")
	ErrUpload   = errors.New("could not upload image")
)

// Messages shown when a device permission is refused.
const (
	GalleryDeniedMessage = "We need permission to access your photos"
	CameraDeniedMessage  = "We need permission to use the camera"
)

type Recipes struct {
	records backend.RecordStore
	images  *Images
	device  media.Device
	log     *zap.Logger
}

func New(records backend.RecordStore, images *Images, device media.Device, log *zap.Logger) *Recipes {
	return &Recipes{records: records, images: images, device: device, log: log}
}

// List returns every recipe, newest first. A backend failure is logged and
// yields an empty list.
func (r *Recipes) List(ctx context.Context) []models.Recipe {
	return r.selectRecipes(ctx, backend.Query{OrderBy: backend.FieldCreatedAt, Desc: true})
}

// SearchByIngredient returns the recipes listing term as one of their
// ingredients (exact, case-sensitive), newest first. Failures behave as in
// List.
func (r *Recipes) SearchByIngredient(ctx context.Context, term string) []models.Recipe {
	q := backend.Query{OrderBy: backend.FieldCreatedAt, Desc: true}.
		Where(fieldIngredients, backend.ArrayContains, term)
	return r.selectRecipes(ctx, q)
}

func (r *Recipes) selectRecipes(ctx context.Context, q backend.Query) []models.Recipe {
	recs, err := r.records.Select(ctx, Table, q)
	if err != nil {
		r.log.Error("Failed to fetch recipes", zap.Error(err))
		return []models.Recipe{}
	}
	recipes := make([]models.Recipe, 0, len(recs))
	for _, rec := range recs {
		recipes = append(recipes, toRecipe(rec))
	}
	return recipes
}

// Get returns a single recipe.
func (r *Recipes) Get(ctx context.Context, id string) (models.Recipe, error) {
	rec, err := r.records.Get(ctx, Table, id)
	if errors.Is(err, backend.ErrNotFound) {
		return models.Recipe{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Recipe{}, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return toRecipe(rec), nil
}

// Create stores a new recipe. When in.ImagePath is set the photo is
// uploaded first; if that upload fails the recipe is stored without one.
func (r *Recipes) Create(ctx context.Context, in models.NewRecipe) (models.Recipe, error) {
	var imageURL interface{}
	if in.ImagePath != "" {
		if url, ok := r.images.Upload(ctx, in.ImagePath); ok {
			imageURL = url
		} else {
			r.log.Warn("Creating recipe without image", zap.String("path", in.ImagePath))
		}
	}

	rec, err := r.records.Insert(ctx, Table, backend.Record{
		fieldTitle:       in.Title,
		fieldDescription: in.Description,
		fieldIngredients: in.Ingredients,
		fieldOwnerID:     in.OwnerID,
		fieldImageURL:    imageURL,
	})
	if err != nil {
		return models.Recipe{}, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return toRecipe(rec), nil
}

// Update rewrites a recipe's fields and applies ch.Image:
//
//   - Keep leaves the stored image reference alone.
//   - Replace uploads the file; the whole update fails if the upload does.
//   - Clear drops the reference.
//
// The fields are written first and the image reference second, only when it
// changed. A previous image that is no longer referenced is removed from
// storage on a best-effort basis.
func (r *Recipes) Update(ctx context.Context, id string, ch models.RecipeChanges) (models.Recipe, error) {
	r.log.Debug("Updating recipe", zap.String("id", id), zap.Stringer("image", ch.Image.Action))

	current, err := r.records.Get(ctx, Table, id)
	if errors.Is(err, backend.ErrNotFound) {
		return models.Recipe{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Recipe{}, fmt.Errorf("%w: loading current image: %w", ErrRead, err)
	}
	prev := current.StringPtr(fieldImageURL)

	target := prev
	switch ch.Image.Action {
	case models.ImageReplace:
		url, ok := r.images.Upload(ctx, ch.Image.Path)
		if !ok {
			return models.Recipe{}, fmt.Errorf("%w: the new image was not stored, recipe left unchanged", ErrUpload)
		}
		target = &url
	case models.ImageClear:
		target = nil
	}

	rec, err := r.records.Update(ctx, Table, id, backend.Record{
		fieldTitle:       ch.Title,
		fieldDescription: ch.Description,
		fieldIngredients: ch.Ingredients,
	})
	if err != nil {
		return models.Recipe{}, fmt.Errorf("%w: updating fields: %w", ErrWrite, err)
	}

	if sameURL(prev, target) {
		return toRecipe(rec), nil
	}

	rec, err = r.records.Update(ctx, Table, id, backend.Record{fieldImageURL: urlValue(target)})
	if err != nil {
		return models.Recipe{}, fmt.Errorf("%w: fields saved but updating image: %w", ErrWrite, err)
	}

	if prev != nil && !r.images.RemoveByURL(ctx, *prev) {
		r.log.Warn("Previous image left in storage", zap.String("id", id), zap.String("url", *prev))
	}
	return toRecipe(rec), nil
}

// Delete removes the recipe record. Its image stays in storage.
func (r *Recipes) Delete(ctx context.Context, id string) error {
	err := r.records.Delete(ctx, Table, id)
	if errors.Is(err, backend.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: deleting: %w", ErrWrite, err)
	}
	return nil
}

// PickFromGallery asks for media library access and lets the user choose a
// photo. ok is false when access is refused, the user cancels, or picking
// fails.
func (r *Recipes) PickFromGallery(ctx context.Context) (path string, ok bool) {
	return r.pick(ctx, media.MediaLibrary, r.device.Gallery, GalleryDeniedMessage)
}

// TakePhoto asks for camera access and captures a photo. See PickFromGallery.
func (r *Recipes) TakePhoto(ctx context.Context) (path string, ok bool) {
	return r.pick(ctx, media.Camera, r.device.Camera, CameraDeniedMessage)
}

func (r *Recipes) pick(ctx context.Context, perm media.Permission, picker media.Picker, denied string) (string, bool) {
	if picker == nil || r.device.Permissions == nil {
		r.log.Warn("Photo source not available", zap.String("permission", string(perm)))
		return "", false
	}

	granted, err := r.device.Permissions.Request(ctx, perm)
	if err != nil {
		r.log.Error("Failed to request permission", zap.String("permission", string(perm)), zap.Error(err))
		return "", false
	}
	if !granted {
		if r.device.Notifier != nil {
			r.device.Notifier.Notify(denied)
		}
		return "", false
	}

	p, err := picker.Pick(ctx)
	if errors.Is(err, media.ErrCanceled) {
		return "", false
	}
	if err != nil {
		r.log.Error("Failed to pick photo", zap.String("permission", string(perm)), zap.Error(err))
		return "", false
	}
	return p, true
}

func toRecipe(rec backend.Record) models.Recipe {
	return models.Recipe{
		ID:          rec.String(backend.FieldID),
		Title:       rec.String(fieldTitle),
		Description: rec.String(fieldDescription),
		Ingredients: rec.Strings(fieldIngredients),
		OwnerID:     rec.String(fieldOwnerID),
		ImageURL:    rec.StringPtr(fieldImageURL),
		CreatedAt:   rec.Time(backend.FieldCreatedAt),
	}
}

func sameURL(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// urlValue keeps an absent reference an untyped nil for the stores.
func urlValue(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
