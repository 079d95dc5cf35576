package coordinator

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Use(s.serverHeaderMiddleware)
	s.router.Use(limitBodyMiddleware)

	agent := s.router.NewRoute().Subrouter()
	agent.Use(s.authMiddleware)
	agent.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet, http.MethodPost)
	agent.HandleFunc("/next-experiment", s.handleNextExperiment).Methods(http.MethodGet)
	agent.HandleFunc("/next-crate", s.handleNextCrate).Methods(http.MethodPost)
	agent.HandleFunc("/record-progress", s.handleRecordProgress).Methods(http.MethodPost)
	agent.HandleFunc("/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)
	agent.HandleFunc("/error", s.handleError).Methods(http.MethodPost)
}
