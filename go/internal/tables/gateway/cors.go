package gateway

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSMiddleware allows control panels hosted elsewhere to reach the HTTP API.
func CORSMiddleware(next http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodOptions,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		MaxAge:         86400,
	})
	return c.Handler(next)
}
