package api

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"venuemesh/internal/api/middleware"
	"venuemesh/internal/gateway"
	"venuemesh/internal/venue"
)

// Dependencies wires every component the HTTP surface exposes.
type Dependencies struct {
	Hub              *gateway.Hub
	Pool             *venue.Pool
	ClientCORSOrigin string
	Logger           *zap.SugaredLogger
}

// SetupRoutes builds the router: /ws/stream for the gateway,
// /healthz for adapter pool health, /metrics for Prometheus, and
// /debug/pprof/* for profiling.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logging(deps.Logger))
	router.Use(middleware.CORS(deps.ClientCORSOrigin))

	if deps.Hub != nil {
		router.Handle("/ws/stream", deps.Hub).Methods("GET")
	}

	router.HandleFunc("/healthz", healthzHandler(deps.Pool)).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	debug := router.PathPrefix("/debug/pprof").Subrouter()
	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.Handle("/heap", pprof.Handler("heap"))
	debug.Handle("/goroutine", pprof.Handler("goroutine"))
	debug.Handle("/block", pprof.Handler("block"))
	debug.Handle("/threadcreate", pprof.Handler("threadcreate"))
	debug.Handle("/mutex", pprof.Handler("mutex"))
	debug.Handle("/allocs", pprof.Handler("allocs"))

	return router
}

type healthzResponse struct {
	Status string              `json:"status"`
	Venues []venue.HealthEntry `json:"venues"`
}

// healthzHandler reports 200 if at least one venue is open, 503
// otherwise — a single adapter down is degraded, not a process
// failure, but zero live venues means the pipeline has nothing to do.
func healthzHandler(pool *venue.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := pool.Health()

		anyOpen := false
		for _, e := range entries {
			if e.State.String() == "open" {
				anyOpen = true
				break
			}
		}

		status := "ok"
		code := http.StatusOK
		if !anyOpen {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(healthzResponse{Status: status, Venues: entries})
	}
}
