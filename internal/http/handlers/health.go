package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, _ *http.Request) {
	stats := a.Studio.CacheStats()
	a.json(w, http.StatusOK, map[string]any{
		"status": "ok",
		"models": map[string]int64{
			"resident": int64(stats.Models),
			"loads":    stats.Loads,
			"hits":     stats.Hits,
		},
	})
}
