package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"recipeshare_backend/models"
	"recipeshare_backend/usecase"
)

var errIncomplete = errors.New("complete all fields")

// recipeRequest is the JSON body of create and update calls. Image is only
// read by updates: "keep" (or empty) or "clear". Replacing an image needs a
// multipart body with a photo part.
type recipeRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Ingredients []string `json:"ingredients"`
	Image       string   `json:"image"`
}

func (s *Server) GetRecipes(w http.ResponseWriter, r *http.Request) {
	var recipes []models.Recipe
	if ing := r.URL.Query().Get("ingredient"); ing != "" {
		recipes = s.Recipes.SearchByIngredient(r.Context(), ing)
	} else {
		recipes = s.Recipes.List(r.Context())
	}
	s.writeJSON(w, http.StatusOK, recipes)
}

func (s *Server) GetRecipe(w http.ResponseWriter, r *http.Request) {
	recipe, err := s.Recipes.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, usecase.ErrNotFound) {
		http.Error(w, "No matching recipe found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.Log.Error("Failed to retrieve recipe", zap.Error(err))
		http.Error(w, "Failed to retrieve recipe", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, recipe)
}

func (s *Server) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	uid, _ := UserID(r.Context())

	req, photo, cleanup, err := s.decodeRecipe(w, r)
	defer cleanup()
	if err != nil {
		s.writeResult(w, http.StatusBadRequest, nil, err)
		return
	}

	in := models.NewRecipe{
		Title:       req.Title,
		Description: req.Description,
		Ingredients: req.Ingredients,
		OwnerID:     uid,
		ImagePath:   photo,
	}
	if !(models.Recipe{Title: in.Title, Description: in.Description, Ingredients: in.Ingredients}).Complete() {
		s.writeResult(w, http.StatusBadRequest, nil, errIncomplete)
		return
	}

	recipe, err := s.Recipes.Create(r.Context(), in)
	if err != nil {
		s.Log.Error("Failed to create recipe", zap.String("owner_id", uid), zap.Error(err))
		s.writeResult(w, statusFor(err), nil, err)
		return
	}
	s.writeResult(w, http.StatusCreated, &recipe, nil)
}

func (s *Server) UpdateRecipe(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.authorizeOwner(w, r, id) {
		return
	}

	req, photo, cleanup, err := s.decodeRecipe(w, r)
	defer cleanup()
	if err != nil {
		s.writeResult(w, http.StatusBadRequest, nil, err)
		return
	}

	ch := models.RecipeChanges{
		Title:       req.Title,
		Description: req.Description,
		Ingredients: req.Ingredients,
	}
	if !(models.Recipe{Title: ch.Title, Description: ch.Description, Ingredients: ch.Ingredients}).Complete() {
		s.writeResult(w, http.StatusBadRequest, nil, errIncomplete)
		return
	}
	switch {
	case photo != "":
		ch.Image = models.ReplaceImage(photo)
	case req.Image == "" || req.Image == "keep":
		ch.Image = models.KeepImage()
	case req.Image == "clear":
		ch.Image = models.ClearImage()
	default:
		s.writeResult(w, http.StatusBadRequest, nil, errors.New("image must be keep or clear, or send a photo part to replace it"))
		return
	}

	recipe, err := s.Recipes.Update(r.Context(), id, ch)
	if err != nil {
		s.Log.Error("Failed to update recipe", zap.String("id", id), zap.Error(err))
		s.writeResult(w, statusFor(err), nil, err)
		return
	}
	s.writeResult(w, http.StatusOK, &recipe, nil)
}

func (s *Server) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.authorizeOwner(w, r, id) {
		return
	}

	if err := s.Recipes.Delete(r.Context(), id); err != nil {
		s.Log.Error("Failed to delete recipe", zap.String("id", id), zap.Error(err))
		http.Error(w, "Failed to delete recipe", statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorizeOwner answers the request and returns false unless the caller
// owns recipe id.
func (s *Server) authorizeOwner(w http.ResponseWriter, r *http.Request, id string) bool {
	uid, _ := UserID(r.Context())
	recipe, err := s.Recipes.Get(r.Context(), id)
	if errors.Is(err, usecase.ErrNotFound) {
		http.Error(w, "No matching recipe found", http.StatusNotFound)
		return false
	}
	if err != nil {
		s.Log.Error("Failed to retrieve recipe", zap.String("id", id), zap.Error(err))
		http.Error(w, "Failed to retrieve recipe", http.StatusInternalServerError)
		return false
	}
	if recipe.OwnerID != uid {
		http.Error(w, "You do not have permission to edit this recipe", http.StatusForbidden)
		return false
	}
	return true
}

// decodeRecipe reads a JSON or multipart body. A multipart photo part is
// saved to a temporary file whose path is returned; cleanup removes it.
func (s *Server) decodeRecipe(w http.ResponseWriter, r *http.Request) (recipeRequest, string, func(), error) {
	noop := func() {}
	var req recipeRequest

	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUpload)
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, "", noop, errors.New("invalid request payload")
		}
		return req, "", noop, nil
	}

	if err := r.ParseMultipartForm(s.MaxUpload); err != nil {
		return req, "", noop, fmt.Errorf("invalid multipart payload: %v", err)
	}
	req.Title = r.FormValue("title")
	req.Description = r.FormValue("description")
	req.Image = r.FormValue("image")
	for _, ing := range r.MultipartForm.Value["ingredients"] {
		if ing = strings.TrimSpace(ing); ing != "" {
			req.Ingredients = append(req.Ingredients, ing)
		}
	}

	file, header, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return req, "", noop, nil
	}
	if err != nil {
		return req, "", noop, fmt.Errorf("invalid photo: %v", err)
	}
	defer file.Close()

	path, err := saveTemp(file, header)
	if err != nil {
		s.Log.Error("Failed to store uploaded photo", zap.Error(err))
		return req, "", noop, errors.New("could not read photo")
	}
	return req, path, func() { os.Remove(path) }, nil
}

func saveTemp(file multipart.File, header *multipart.FileHeader) (string, error) {
	f, err := os.CreateTemp("", "upload-*"+strings.ToLower(filepath.Ext(header.Filename)))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, file); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
