// Package web exposes the exporter's HTTP API. Routing and request parsing
// here are thin glue over the session store, converter and rate limiter.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"schedex/internal/config"
	"schedex/internal/ics"
	appLog "schedex/internal/log"
	"schedex/internal/mailer"
	"schedex/internal/portal"
	"schedex/internal/ratelimit"
	"schedex/internal/schedule"
	"schedex/internal/session"
	"schedex/internal/store"
	"schedex/internal/timetable"
)

// Server wires the HTTP API to its collaborators.
type Server struct {
	cfg       *config.Config
	mux       *http.ServeMux
	sessions  *session.Manager
	limiter   *ratelimit.Limiter
	sender    mailer.Sender // nil when mailing is not configured
	newClient portal.Factory
	loc       *time.Location

	// now feeds the converter's DTSTAMP; injectable for tests.
	now func() time.Time
}

// NewServer constructs the API server. sender may be nil, in which case
// /mail_ics reports 501.
func NewServer(cfg *config.Config, sessions *session.Manager, limiter *ratelimit.Limiter, sender mailer.Sender, factory portal.Factory) *Server {
	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		sessions:  sessions,
		limiter:   limiter,
		sender:    sender,
		newClient: factory,
		loc:       resolveLocationOrLocal(cfg.Timezone),
		now:       time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/student_id", s.authenticated(true, s.handleStudentID))
	s.mux.HandleFunc("/schedule", s.authenticated(true, s.handleSchedule))
	s.mux.HandleFunc("/term_start", s.authenticated(true, s.handleTermStart))
	s.mux.HandleFunc("/schedule_ics", s.authenticated(true, s.handleScheduleICS))
	s.mux.HandleFunc("/mail_ics", s.authenticated(true, s.handleMailICS))
	s.mux.HandleFunc("/logout", s.authenticated(false, s.handleLogout))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// authCtx is the resolved session for one authenticated request.
type authCtx struct {
	token  string
	record session.Record
	client portal.Client
}

// authenticated wraps a handler with session resolution: the request body
// carries {"session": token}; the token resolves to a stored record whose
// state blob is restored into a fresh portal client. With autoSave, the
// (possibly refreshed) client state is written back after the handler,
// resetting the session TTL.
func (s *Server) authenticated(autoSave bool, fn func(w http.ResponseWriter, r *http.Request, ac *authCtx) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST only")
			return
		}
		ctx := r.Context()

		var body struct {
			Session string `json:"session"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Session == "" {
			writeError(w, http.StatusForbidden, "Invalid session.")
			return
		}

		rec, err := s.sessions.Load(ctx, body.Session)
		if err != nil {
			s.writeFailure(w, err)
			return
		}

		client := s.newClient()
		if err := client.Restore(rec.State); err != nil {
			s.writeFailure(w, err)
			return
		}

		ac := &authCtx{token: body.Session, record: rec, client: client}
		if err := fn(w, r, ac); err != nil {
			s.writeFailure(w, err)
			return
		}

		if autoSave {
			state, err := client.Dump()
			if err != nil {
				appLog.Error("session auto-save: dump failed", err)
				return
			}
			rec.State = state
			if err := s.sessions.Refresh(ctx, ac.token, rec); err != nil {
				appLog.Error("session auto-save failed", err)
			}
		}
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	ctx := r.Context()

	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	client := s.newClient()
	if err := client.Login(ctx, creds.Username, creds.Password); err != nil {
		if errors.Is(err, portal.ErrAuth) {
			writeError(w, http.StatusForbidden, "Wrong username or password.")
			return
		}
		s.writeFailure(w, err)
		return
	}

	state, err := client.Dump()
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	token, err := s.sessions.Create(ctx, session.Record{
		Principal: creds.Username,
		State:     state,
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	appLog.Info("login ok", "principal", creds.Username)
	writeJSON(w, http.StatusOK, map[string]string{"session": token})
}

func (s *Server) handleStudentID(w http.ResponseWriter, r *http.Request, ac *authCtx) error {
	id, err := ac.client.StudentID(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]int{"student_id": id})
	return nil
}

// classDTO is the /schedule response shape: flattened weeks plus the
// resolved wall-clock range.
type classDTO struct {
	schedule.ClassEntry
	Start string `json:"start_time"`
	End   string `json:"end_time"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request, ac *authCtx) error {
	year, term, err := yearTermParams(r)
	if err != nil {
		return err
	}

	raws, err := ac.client.Schedule(r.Context(), year, term)
	if err != nil {
		return err
	}
	classes, err := portal.NormalizeAll(raws)
	if err != nil {
		return err
	}

	dtos := make([]classDTO, 0, len(classes))
	for _, entry := range classes {
		span, err := timetable.Resolve(entry.Periods...)
		if err != nil {
			return fmt.Errorf("schedule: class %q: %w", entry.Name, err)
		}
		dtos = append(dtos, classDTO{
			ClassEntry: entry,
			Start:      span.Start.String(),
			End:        span.End.String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"classes": dtos})
	return nil
}

func (s *Server) handleTermStart(w http.ResponseWriter, r *http.Request, ac *authCtx) error {
	termStart, err := ac.client.TermStart(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"term_start": termStart.Format("2006-01-02")})
	return nil
}

func (s *Server) handleScheduleICS(w http.ResponseWriter, r *http.Request, ac *authCtx) error {
	payload, _, err := s.buildICS(r.Context(), r, ac)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
	return nil
}

var termNames = map[int]string{0: "秋季", 1: "春季", 2: "夏季"}

func (s *Server) handleMailICS(w http.ResponseWriter, r *http.Request, ac *authCtx) error {
	if s.sender == nil {
		writeError(w, http.StatusNotImplemented, "This server doesn't have mailing capability.")
		return nil
	}
	ctx := r.Context()

	recipient := strings.ToLower(ac.record.Principal)
	if !strings.Contains(recipient, "@") {
		recipient += "@sjtu.edu.cn"
	}

	// Exactly one mail per recipient per cooldown window. CheckAndMark is
	// atomic per identity, so concurrent requests cannot both pass.
	if err := s.limiter.CheckAndMark(ctx, recipient); err != nil {
		return err
	}

	payload, year, err := s.buildICS(ctx, r, ac)
	if err != nil {
		return err
	}
	term, _ := strconv.Atoi(r.URL.Query().Get("term"))
	termName, ok := termNames[term]
	if !ok {
		termName = strconv.Itoa(term)
	}

	err = s.sender.Send(ctx, mailer.Message{
		To:       recipient,
		Subject:  fmt.Sprintf("%d学年%s学期交大课表", year, termName),
		Template: s.mailTemplate(),
		Variables: map[string]string{
			"year": strconv.Itoa(year),
			"term": termName,
		},
		Attachment: &mailer.Attachment{
			Filename:    "schedule.ics",
			ContentType: "text/calendar",
			Content:     payload,
		},
	})
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, map[string]string{"to_address": recipient})
	return nil
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, ac *authCtx) error {
	ctx := r.Context()
	if err := ac.client.Logout(ctx); err != nil {
		appLog.Error("portal logout failed", err, "principal", ac.record.Principal)
	}
	if err := s.sessions.Delete(ctx, ac.token); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	return nil
}

// buildICS fetches the schedule (and, unless overridden via the
// term_start_date query param, the term start date) and converts it into a
// calendar payload. Returns the payload and the requested year.
func (s *Server) buildICS(ctx context.Context, r *http.Request, ac *authCtx) ([]byte, int, error) {
	year, term, err := yearTermParams(r)
	if err != nil {
		return nil, 0, err
	}

	termStart, err := termStartParam(r)
	if err != nil {
		return nil, 0, err
	}
	if termStart.IsZero() {
		termStart, err = ac.client.TermStart(ctx)
		if err != nil {
			return nil, 0, err
		}
	}

	raws, err := ac.client.Schedule(ctx, year, term)
	if err != nil {
		return nil, 0, err
	}
	classes, err := portal.NormalizeAll(raws)
	if err != nil {
		return nil, 0, err
	}

	payload, err := ics.Build(classes, termStart, ics.Options{
		Location: s.loc,
		Now:      s.now,
	})
	if err != nil {
		return nil, 0, err
	}
	return payload, year, nil
}

// errBadRequest marks malformed request parameters.
var errBadRequest = errors.New("bad request")

func yearTermParams(r *http.Request) (year, term int, err error) {
	q := r.URL.Query()
	year, err = strconv.Atoi(q.Get("year"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: missing or invalid year", errBadRequest)
	}
	term, err = strconv.Atoi(q.Get("term"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: missing or invalid term", errBadRequest)
	}
	return year, term, nil
}

func termStartParam(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("term_start_date")
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid term_start_date", errBadRequest)
	}
	return t, nil
}

func (s *Server) mailTemplate() string {
	if s.cfg.Mail != nil {
		return s.cfg.Mail.Template
	}
	return ""
}

// writeFailure maps the error taxonomy onto HTTP statuses: invalid or
// expired sessions are 403, cooldown is 429, invalid schedule data is 422,
// collaborator failures are 502.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var invalid *ics.InvalidScheduleError
	switch {
	case errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNoSession):
		writeError(w, http.StatusForbidden, "Invalid session.")
	case errors.Is(err, portal.ErrAuth), errors.Is(err, portal.ErrSessionExpired):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ratelimit.ErrLimited):
		writeError(w, http.StatusTooManyRequests, "You are not allowed to send more than 1 email per minute.")
	case errors.As(err, &invalid):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, timetable.ErrPeriodOutOfRange), errors.Is(err, timetable.ErrEmptyPeriods):
		appLog.Error("upstream schedule data invalid", err)
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, store.ErrUpstream):
		appLog.Error("store failure", err)
		writeError(w, http.StatusBadGateway, "storage unavailable")
	default:
		appLog.Error("request failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Detail string `json:"detail"`
	}
	writeJSON(w, status, errResp{Detail: msg})
}
