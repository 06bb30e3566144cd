package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows browser front-ends on the given origins to call the API and
// read the download filename. An empty list or "*" allows any origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "Content-Length", "Retry-After"},
		MaxAge:         600,
	})
	return c.Handler
}
