package handlers

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

const defaultMaxUpload = 10 << 20

// NewRouter wires the routes. When filesDir is set, its content is served
// under /files/ for the local object store.
func NewRouter(s *Server, allowedOrigins []string, filesDir string) http.Handler {
	if s.MaxUpload <= 0 {
		s.MaxUpload = defaultMaxUpload
	}
	if s.HTTPClient == nil {
		s.HTTPClient = http.DefaultClient
	}

	r := mux.NewRouter()
	r.Use(s.WithTimeout)

	r.HandleFunc("/auth/register", s.Register).Methods("POST")
	r.HandleFunc("/auth/login", s.Login).Methods("POST")
	r.HandleFunc("/auth/logout", s.Logout).Methods("POST")

	r.HandleFunc("/recipes", s.GetRecipes).Methods("GET")
	r.HandleFunc("/recipes/{id}", s.GetRecipe).Methods("GET")
	r.HandleFunc("/recipes/{id}/image", s.RecipeImage).Methods("GET")

	authed := r.NewRoute().Subrouter()
	authed.Use(s.RequireAuth)
	authed.HandleFunc("/recipes", s.CreateRecipe).Methods("POST")
	authed.HandleFunc("/recipes/{id}", s.UpdateRecipe).Methods("PUT")
	authed.HandleFunc("/recipes/{id}", s.DeleteRecipe).Methods("DELETE")

	if filesDir != "" {
		files := http.FileServer(filesOnly{http.Dir(filesDir)})
		r.PathPrefix("/files/").Handler(http.StripPrefix("/files/", files)).Methods("GET")
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// filesOnly hides directories so the file server never lists a bucket.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
