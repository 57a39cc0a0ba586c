package peer

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/elgohr-update/porkotron-constellation-1/snapshot"
)

// Verifier judges a peer-announced snapshot against this node's own view.
// The judgement itself (comparing the announced hash/height against local
// chain state) is out of scope here; this package only wires the HTTP
// surface around whatever Verifier the caller supplies.
type Verifier interface {
	Verify(snapshot.SnapshotCreated) snapshot.VerificationStatus
}

// Server exposes the two peer-facing endpoints the snapshot package's
// PeerRPCClient talks to: POST /snapshot/verify and GET /snapshot/recent.
type Server struct {
	recent   *snapshot.RecentSnapshotsHolder
	verifier Verifier
	router   chi.Router
}

// NewServer builds the router. Auth (request signing, peer whitelisting)
// is out of scope for this node's consensus layer: the router installs
// only a CORS handler and no authentication middleware.
func NewServer(recent *snapshot.RecentSnapshotsHolder, verifier Verifier) *Server {
	s := &Server{recent: recent, verifier: verifier}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}))
	r.Post("/snapshot/verify", s.handleVerify)
	r.Get("/snapshot/recent", s.handleRecent)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body snapshot.SnapshotCreated
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := snapshot.SnapshotVerification{
		ID:             uuid.NewString(),
		Status:         s.verifier.Verify(body),
		RecentSnapshot: s.recent.Snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.recent.Snapshot())
}
