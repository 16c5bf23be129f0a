package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"stylegan-api/internal/service"
)

// App holds the dependencies shared by every handler.
type App struct {
	Studio       *service.Studio
	Logger       zerolog.Logger
	ImageBaseURL string
	validate     *validator.Validate
}

func NewApp(studio *service.Studio, logger zerolog.Logger, imageBaseURL string) *App {
	return &App{
		Studio:       studio,
		Logger:       logger,
		ImageBaseURL: imageBaseURL,
		validate:     newValidator(),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": message},
	})
}
