package handlers

import (
	"net/http"

	"stylegan-api/internal/stylegan"
)

// modelFamily is the display name of the served generator family.
const modelFamily = "StyleGan2ADA"

type modelGroup struct {
	Version string                     `json:"version"`
	Models  []stylegan.ModelDescriptor `json:"models"`
}

// Models lists the checkpoints available for generation.
func (a *App) Models(w http.ResponseWriter, _ *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"stylegan_models": []modelGroup{{Version: modelFamily, Models: a.Studio.Models()}},
	})
}

type methodOption struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Name        string  `json:"name"`
	Place       int     `json:"place"`
	Options     []any   `json:"options,omitempty"`
	Max         *int    `json:"max,omitempty"`
	Min         *int    `json:"min,omitempty"`
	Step        float64 `json:"step,omitempty"`
	Default     any     `json:"default"`
}

type method struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	MethodOptions []methodOption `json:"method_options"`
}

func intPtr(v int) *int { return &v }

// Methods describes the inputs of every generation method so clients can
// build their forms.
func (a *App) Methods(w http.ResponseWriter, _ *http.Request) {
	models := a.Studio.Models()
	options := make([]any, len(models))
	for i, m := range models {
		options[i] = m
	}
	bands := make([]any, 0, 3)
	for _, b := range stylegan.Bands() {
		bands = append(bands, string(b))
	}
	modelsDropdown := methodOption{Type: "dropdown", Name: "Models", Place: 1, Options: options, Default: 0}
	truncation := methodOption{Type: "slider", Name: "Truncation", Place: 2, Max: intPtr(2), Min: intPtr(-2), Step: 0.1, Default: 1}

	a.json(w, http.StatusOK, map[string]any{
		"methods": []method{
			{
				Name:        "Generate",
				Description: "Generate random images or from a certain seed.",
				MethodOptions: []methodOption{
					modelsDropdown,
					truncation,
					{Type: "text", Name: "Seed", Place: 3, Description: "Leave empty for a random seed.", Default: ""},
				},
			},
			{
				Name:        "StyleMix",
				Description: "Style mix different images.",
				MethodOptions: []methodOption{
					modelsDropdown,
					truncation,
					{Type: "seed_or_image", Name: "Row image", Place: 3, Description: "A seed, an image id or empty for random.", Default: ""},
					{Type: "seed_or_image", Name: "Column image", Place: 4, Description: "A seed, an image id or empty for random.", Default: ""},
					{Type: "dropdown", Name: "Styles", Place: 5, Options: bands, Default: 1},
				},
			},
			{
				Name:        "Projection",
				Description: "Find the latent code of an uploaded image.",
				MethodOptions: []methodOption{
					modelsDropdown,
					{Type: "text", Name: "Steps", Place: 2, Default: "100"},
				},
			},
		},
	})
}
