package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/decksmith/internal/auth"
	"github.com/conorfennell/decksmith/internal/deck"
	"github.com/conorfennell/decksmith/internal/domain"
	"github.com/conorfennell/decksmith/internal/leitner"
	"github.com/conorfennell/decksmith/internal/proposal"
	"github.com/conorfennell/decksmith/internal/storage"
)

const sessionCookie = "session"

// contentPreviewLen bounds the content echoed back by the import
// endpoint; the client sends the full text back for generation.
const contentPreviewLen = 1000

// Fetcher retrieves readable text from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Server holds the dependencies for the HTTP API.
type Server struct {
	router    *http.ServeMux
	sessions  *auth.Sessions
	fetcher   Fetcher
	proposals *proposal.Manager
	scheduler *leitner.Scheduler
	validate  *validator.Validate

	devPassword string
	reposDir    string
}

// NewServer creates and configures a new server.
func NewServer(sessions *auth.Sessions, fetcher Fetcher, proposals *proposal.Manager, scheduler *leitner.Scheduler, devPassword, reposDir string) *Server {
	s := &Server{
		router:      http.NewServeMux(),
		sessions:    sessions,
		fetcher:     fetcher,
		proposals:   proposals,
		scheduler:   scheduler,
		validate:    validator.New(),
		devPassword: devPassword,
		reposDir:    reposDir,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("POST /auth/login", s.handleLogin())
	s.router.HandleFunc("GET /health", s.handleHealth())

	s.router.HandleFunc("POST /import/url", s.requireSession(s.handleImportURL()))
	s.router.HandleFunc("POST /import/deck", s.requireSession(s.handleImportDeck()))
	s.router.HandleFunc("POST /ai/generate", s.requireSession(s.handleGenerate()))
	s.router.HandleFunc("GET /cards/proposals", s.requireSession(s.handleProposals()))
	s.router.HandleFunc("POST /cards/accept", s.requireSession(s.handleAccept()))
	s.router.HandleFunc("GET /review/next", s.requireSession(s.handleReviewNext()))
	s.router.HandleFunc("POST /review/grade", s.requireSession(s.handleReviewGrade()))
}

// requireSession gates a handler behind a valid session cookie.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil || !s.sessions.Verify(cookie.Value) {
			s.error(w, http.StatusUnauthorized, "no valid session")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

type loginRequest struct {
	Password string `json:"password" validate:"required"`
}

// handleLogin checks the dev password and issues a session cookie. It
// accepts either a JSON body or form data.
func (s *Server) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
			if !s.decode(w, r, &req) {
				return
			}
		} else {
			req.Password = r.PostFormValue("password")
			if req.Password == "" {
				s.error(w, http.StatusBadRequest, "password is required")
				return
			}
		}

		if req.Password != s.devPassword {
			slog.Warn("login attempt with incorrect password")
			s.error(w, http.StatusUnauthorized, "invalid password")
			return
		}

		token, err := s.sessions.Create()
		if err != nil {
			slog.Error("failed to create session token", "error", err)
			s.error(w, http.StatusInternalServerError, "internal server error")
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    token,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Path:     "/",
		})
		s.respond(w, http.StatusOK, map[string]bool{"success": true})
	}
}

type importURLRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type importURLResponse struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

// handleImportURL fetches a page and opens an import session for it.
// The session is created only after the fetch succeeds, so a failed
// fetch leaves no empty session behind.
func (s *Server) handleImportURL() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req importURLRequest
		if !s.decode(w, r, &req) {
			return
		}

		content, err := s.fetcher.Fetch(r.Context(), req.URL)
		if err != nil {
			slog.Error("failed to fetch URL", "url", req.URL, "error", err)
			s.error(w, http.StatusBadRequest, "failed to parse URL")
			return
		}

		session, err := s.proposals.CreateSession()
		if err != nil {
			slog.Error("failed to create import session", "error", err)
			s.error(w, http.StatusInternalServerError, "internal server error")
			return
		}

		preview := content
		if len(preview) > contentPreviewLen {
			preview = preview[:contentPreviewLen] + "..."
		}
		s.respond(w, http.StatusOK, importURLResponse{
			SessionID: session.ID,
			Content:   preview,
			WordCount: len(strings.Fields(content)),
		})
	}
}

type importDeckRequest struct {
	Source string `json:"source" validate:"required"`
}

type importDeckResponse struct {
	SessionID string         `json:"session_id"`
	Proposals []proposalData `json:"proposals"`
}

// handleImportDeck loads a markdown deck (local directory or git URL)
// and persists its cards as proposals under a fresh session.
func (s *Server) handleImportDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req importDeckRequest
		if !s.decode(w, r, &req) {
			return
		}

		candidates, err := deck.Load(req.Source, s.reposDir)
		if err != nil {
			slog.Error("failed to load deck", "source", req.Source, "error", err)
			s.error(w, http.StatusBadRequest, "failed to load deck")
			return
		}

		session, err := s.proposals.CreateSession()
		if err != nil {
			slog.Error("failed to create import session", "error", err)
			s.error(w, http.StatusInternalServerError, "internal server error")
			return
		}

		persisted, err := s.proposals.AddCandidates(session.ID, candidates)
		if err != nil {
			slog.Error("failed to persist deck candidates", "error", err)
			s.error(w, http.StatusInternalServerError, "failed to import deck")
			return
		}
		s.respond(w, http.StatusOK, importDeckResponse{
			SessionID: session.ID,
			Proposals: toProposalData(persisted),
		})
	}
}

type generateRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Content   string `json:"content" validate:"required"`
	Level     string `json:"level" validate:"omitempty,oneof=A2 B1 B2"`
}

type cardData struct {
	Front   string `json:"front"`
	Back    string `json:"back"`
	Context string `json:"context"`
}

type generateResponse struct {
	Cards []cardData `json:"cards"`
}

func (s *Server) handleGenerate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if !s.decode(w, r, &req) {
			return
		}
		if req.Level == "" {
			req.Level = "B1"
		}

		persisted, err := s.proposals.ProposeCards(r.Context(), req.SessionID, req.Content, req.Level)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			s.error(w, http.StatusNotFound, "unknown session")
			return
		case errors.Is(err, proposal.ErrSource):
			slog.Error("card generation failed", "error", err)
			s.error(w, http.StatusInternalServerError, "failed to generate cards")
			return
		case err != nil:
			slog.Error("failed to persist proposals", "error", err)
			s.error(w, http.StatusInternalServerError, "internal server error")
			return
		}

		resp := generateResponse{Cards: []cardData{}}
		for _, p := range persisted {
			resp.Cards = append(resp.Cards, cardData{Front: p.Front, Back: p.Back, Context: p.Context})
		}
		s.respond(w, http.StatusOK, resp)
	}
}

type proposalData struct {
	ID      string `json:"id"`
	Front   string `json:"front"`
	Back    string `json:"back"`
	Context string `json:"context"`
}

type proposalsResponse struct {
	Proposals []proposalData `json:"proposals"`
}

func (s *Server) handleProposals() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			s.error(w, http.StatusBadRequest, "session_id is required")
			return
		}

		proposals, err := s.proposals.ListProposals(sessionID)
		if err != nil {
			slog.Error("failed to list proposals", "session_id", sessionID, "error", err)
			s.error(w, http.StatusInternalServerError, "internal server error")
			return
		}
		s.respond(w, http.StatusOK, proposalsResponse{Proposals: toProposalData(proposals)})
	}
}

type acceptRequest struct {
	ProposalIDs []string `json:"proposal_ids" validate:"required"`
}

type acceptResponse struct {
	AcceptedCount int `json:"accepted_count"`
}

func (s *Server) handleAccept() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req acceptRequest
		if !s.decode(w, r, &req) {
			return
		}

		count, err := s.proposals.AcceptProposals(req.ProposalIDs)
		if err != nil {
			slog.Error("failed to accept proposals", "error", err)
			s.error(w, http.StatusInternalServerError, "failed to accept cards")
			return
		}
		s.respond(w, http.StatusOK, acceptResponse{AcceptedCount: count})
	}
}

type reviewCardData struct {
	ID      string `json:"id"`
	Front   string `json:"front"`
	Context string `json:"context"`
}

type nextCardResponse struct {
	Card    *reviewCardData `json:"card"`
	HasMore bool            `json:"has_more"`
}

func (s *Server) handleReviewNext() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := s.scheduler.NextDue()
		if err != nil {
			slog.Error("failed to get next due card", "error", err)
			s.error(w, http.StatusInternalServerError, "internal server error")
			return
		}

		resp := nextCardResponse{}
		if card != nil {
			resp.Card = &reviewCardData{ID: card.ID, Front: card.Front, Context: card.Context}
			resp.HasMore = true
		}
		s.respond(w, http.StatusOK, resp)
	}
}

type gradeRequest struct {
	CardID string `json:"card_id" validate:"required"`
	Grade  string `json:"grade" validate:"required,oneof=easy hard"`
}

type gradeResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleReviewGrade() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gradeRequest
		if !s.decode(w, r, &req) {
			return
		}

		ok, err := s.scheduler.Grade(req.CardID, domain.Grade(req.Grade))
		if err != nil {
			slog.Error("failed to grade card", "card_id", req.CardID, "error", err)
			s.error(w, http.StatusInternalServerError, "failed to grade card")
			return
		}
		s.respond(w, http.StatusOK, gradeResponse{Success: ok})
	}
}

func toProposalData(proposals []domain.CardProposal) []proposalData {
	out := make([]proposalData, 0, len(proposals))
	for _, p := range proposals {
		out = append(out, proposalData{ID: p.ID, Front: p.Front, Back: p.Back, Context: p.Context})
	}
	return out
}

// decode reads and validates a JSON request body, replying with a 400
// itself when the body is unusable.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.error(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) error(w http.ResponseWriter, status int, detail string) {
	s.respond(w, status, map[string]string{"detail": detail})
}
