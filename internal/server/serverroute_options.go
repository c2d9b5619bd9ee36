package server

import "net/http"

// handleOptions returns the options schema for the spawn form
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	schema, err := s.spawner.Options(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, schema)
}
