package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// NewRouter wires the API and, when metrics is non-nil, the metrics handler at metricsPath.
func NewRouter(api *API, metrics http.Handler, metricsPath string, logger *log.Logger) *BasicRouter {
	router := NewBasicRouter()
	router.Use(Recover(logger), Logging(logger))
	router.Handler(api)

	if metrics != nil {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		router.Handle(http.MethodGet, metricsPath, metrics)
	}
	return router
}

// NewHTTPServer creates the daemon's listener. WriteTimeout is left unset because drains
// answer only once they are done.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
