package handlers

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"recipeshare_backend/usecase"
)

const (
	defaultImageHeight = 500
	maxImageHeight     = 2000
)

// RecipeImage fetches a recipe's photo, scales it to the requested height
// keeping the aspect ratio, and returns it.
func (s *Server) RecipeImage(w http.ResponseWriter, r *http.Request) {
	height := uint(defaultImageHeight)
	if h := r.URL.Query().Get("height"); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n <= 0 || n > maxImageHeight {
			http.Error(w, fmt.Sprintf("height must be between 1 and %d", maxImageHeight), http.StatusBadRequest)
			return
		}
		height = uint(n)
	}

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
	if recipe.ImageURL == nil {
		http.Error(w, "Recipe has no image", http.StatusNotFound)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, *recipe.ImageURL, nil)
	if err != nil {
		http.Error(w, "Failed to fetch image", http.StatusInternalServerError)
		return
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		s.Log.Warn("Failed to fetch image", zap.String("url", *recipe.ImageURL), zap.Error(err))
		http.Error(w, "Failed to fetch image", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		http.Error(w, "Failed to fetch image", http.StatusBadGateway)
		return
	}

	img, format, err := image.Decode(resp.Body)
	if err != nil {
		http.Error(w, "Failed to decode image", http.StatusUnsupportedMediaType)
		return
	}

	// Width follows the original aspect ratio.
	bounds := img.Bounds()
	aspectRatio := float64(bounds.Dx()) / float64(bounds.Dy())
	width := uint(float64(height) * aspectRatio)
	resized := resize.Resize(width, height, img, resize.Lanczos3)

	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		w.Header().Set("Content-Type", "image/jpeg")
		err = jpeg.Encode(w, resized, nil)
	case "png":
		w.Header().Set("Content-Type", "image/png")
		err = png.Encode(w, resized)
	default:
		http.Error(w, "Unsupported image format", http.StatusUnsupportedMediaType)
		return
	}
	if err != nil {
		s.Log.Error("Failed to encode image", zap.Error(err))
	}
}
