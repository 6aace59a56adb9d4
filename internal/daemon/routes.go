package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"intake/internal/api"
	"intake/internal/decision"
	"intake/internal/events"
	"intake/internal/services"
	"intake/internal/state"
)

const (
	maxRequestBody     = 1 << 20
	kindInvalidRequest = "invalid_request"
)

// routes builds the control API. /healthz and /metrics are unauthenticated.
func (d *Daemon) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", d.handleHealth)
	if d.metrics != nil && d.cfg.Metrics.Enabled {
		r.Handle("/metrics", d.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(d.cfg.Paths.APIToken))

		r.Get("/status", d.handleStatus)
		r.Get("/logs", d.handleLogs)
		r.Post("/poll", d.handlePoll)
		r.Post("/reactions", d.handleReaction)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", d.handleQueue)
			r.Post("/replay", d.handleReplay)
			r.Delete("/{jobID}", d.handleClearJob)
		})

		r.Route("/applications", func(r chi.Router) {
			r.Get("/", d.handleApplications)
			r.Route("/{appID}", func(r chi.Router) {
				r.Get("/", d.handleApplication)
				r.Post("/finalize", d.handleFinalize)
				r.Post("/reopen", d.handleReopen)
				r.Post("/evaluate", d.handleEvaluate)
			})
		})
	})
	return r
}

// APIAddr reports the API listener address while running.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	d.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *Daemon) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := d.Status()
	payload := api.StatusResponse{
		Running:    status.Running,
		PID:        status.PID,
		StatePath:  status.StatePath,
		LockPath:   status.LockPath,
		Revision:   status.Revision,
		QueueDepth: status.QueueDepth,
		Busy:       status.Busy,
		Pending:    status.Pending,
		Counters:   status.Counters,
		Workflow:   api.FromStatusSummary(status.Workflow),
	}
	if !status.UpdatedAt.IsZero() {
		payload.UpdatedAt = status.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	if status.Blocked != nil {
		blocked := api.FromJob(*status.Blocked)
		payload.Blocked = &blocked
	}
	for _, check := range status.Checks {
		payload.Checks = append(payload.Checks, api.CheckResult{Name: check.Name, Passed: check.Passed, Detail: check.Detail})
	}
	d.writeJSON(w, http.StatusOK, payload)
}

func (d *Daemon) handleQueue(w http.ResponseWriter, _ *http.Request) {
	doc := d.Snapshot()
	resp := api.QueueResponse{Items: api.FromJobs(doc.SortedJobs())}
	if d.busy != nil {
		resp.Busy = d.busy()
	}
	d.writeJSON(w, http.StatusOK, resp)
}

func (d *Daemon) handleReplay(w http.ResponseWriter, r *http.Request) {
	result, err := d.Submit(r.Context(), events.Event{Kind: events.KindReplay})
	if err != nil {
		d.writeFailure(w, err)
		return
	}
	resp := api.ReplayResponse{}
	if result.Drain != nil {
		resp.Result = *result.Drain
	}
	d.writeJSON(w, http.StatusOK, resp)
}

func (d *Daemon) handleClearJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	result, err := d.Submit(r.Context(), events.ClearJob(jobID))
	if err != nil {
		d.writeFailure(w, err)
		return
	}
	resp := api.ClearResponse{}
	if result.Cleared != nil {
		resp.Item = api.FromJob(*result.Cleared)
	}
	d.writeJSON(w, http.StatusOK, resp)
}

// handlePoll answers 200 when the sheet read failed but the drain ran, so
// callers see both the error and the drain result.
func (d *Daemon) handlePoll(w http.ResponseWriter, r *http.Request) {
	result, err := d.Submit(r.Context(), events.Event{Kind: events.KindPoll})
	if result.Poll == nil {
		d.writeFailure(w, err)
		return
	}
	resp := api.PollResponse{Result: *result.Poll}
	if err != nil {
		resp.Error = err.Error()
	}
	d.writeJSON(w, http.StatusOK, resp)
}

func (d *Daemon) handleApplications(w http.ResponseWriter, r *http.Request) {
	var filter state.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, ok := state.ParseStatus(strings.ToLower(raw))
		if !ok {
			d.writeError(w, http.StatusBadRequest, "invalid status "+strconv.Quote(raw), kindInvalidRequest)
			return
		}
		filter = parsed
	}

	doc := d.Snapshot()
	apps := make([]*state.Application, 0, len(doc.Applications))
	for _, app := range doc.Applications {
		if filter != "" && app.Status != filter {
			continue
		}
		apps = append(apps, app)
	}
	d.writeJSON(w, http.StatusOK, api.ApplicationsResponse{Items: api.FromApplications(apps)})
}

func (d *Daemon) handleApplication(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	app := d.Snapshot().Application(appID)
	if app == nil {
		d.writeError(w, http.StatusNotFound, "application "+appID+" not found", string(decision.UnknownApplication))
		return
	}
	d.writeJSON(w, http.StatusOK, api.ApplicationResponse{Item: api.FromApplication(app)})
}

func (d *Daemon) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req api.FinalizeRequest
	if !d.decode(w, r, &req) {
		return
	}
	status := state.Status(strings.ToLower(strings.TrimSpace(req.Decision)))
	if parsed, ok := state.ParseStatus(string(status)); ok {
		status = parsed
	}
	source := state.DecisionSource(strings.TrimSpace(req.Source))
	if source == "" {
		source = state.SourceForceCommand
	}

	ev := events.Finalize(chi.URLParam(r, "appID"), status, source, strings.TrimSpace(req.ActorID), strings.TrimSpace(req.Reason))
	d.respondDecision(w, r, ev)
}

func (d *Daemon) handleReopen(w http.ResponseWriter, r *http.Request) {
	var req api.ReopenRequest
	if !d.decode(w, r, &req) {
		return
	}
	ev := events.Reopen(chi.URLParam(r, "appID"), strings.TrimSpace(req.ActorID), strings.TrimSpace(req.Reason))
	d.respondDecision(w, r, ev)
}

func (d *Daemon) respondDecision(w http.ResponseWriter, r *http.Request, ev events.Event) {
	result, err := d.Submit(r.Context(), ev)
	if err != nil {
		d.writeFailure(w, err)
		return
	}
	if result.Decision == nil {
		d.writeError(w, http.StatusInternalServerError, "no decision outcome", string(services.CategoryUnexpected))
		return
	}
	if failure := result.Decision.Failure; failure != nil {
		d.writeError(w, statusForFailure(failure.Code), failure.Message(), string(failure.Code))
		return
	}
	d.writeJSON(w, http.StatusOK, api.DecisionResponse{Outcome: *result.Decision})
}

func (d *Daemon) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ev := events.Event{Kind: events.KindEvaluate, ApplicationID: chi.URLParam(r, "appID")}
	d.respondVote(w, r, ev)
}

// handleReaction receives reaction changes forwarded by the chat gateway.
func (d *Daemon) handleReaction(w http.ResponseWriter, r *http.Request) {
	var req api.ReactionRequest
	if !d.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ApplicationID) == "" {
		d.writeError(w, http.StatusBadRequest, "applicationId is required", kindInvalidRequest)
		return
	}
	d.respondVote(w, r, events.Reaction(strings.TrimSpace(req.ApplicationID), req.Emoji, req.UserID))
}

func (d *Daemon) respondVote(w http.ResponseWriter, r *http.Request, ev events.Event) {
	result, err := d.Submit(r.Context(), ev)
	if err != nil && result.Vote == nil {
		d.writeFailure(w, err)
		return
	}
	if result.Ignored {
		d.writeJSON(w, http.StatusOK, api.VoteResponse{Ignored: true})
		return
	}
	if result.Vote != nil && result.Vote.Failure != nil {
		failure := result.Vote.Failure
		d.writeError(w, statusForFailure(failure.Code), failure.Message(), string(failure.Code))
		return
	}
	if err != nil {
		d.writeFailure(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, api.VoteResponse{Outcome: result.Vote})
}

func (d *Daemon) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}

	captured := d.history.Since(since, limit)
	next := since
	if len(captured) > 0 {
		next = captured[len(captured)-1].Sequence
	}
	d.writeJSON(w, http.StatusOK, api.LogsResponse{Events: api.FromLogEvents(captured), Next: next})
}

func (d *Daemon) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	err := json.NewDecoder(body).Decode(out)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	d.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), kindInvalidRequest)
	return false
}

func (d *Daemon) writeFailure(w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("request produced no result")
	}
	d.writeError(w, statusForError(err), err.Error(), string(services.Classify(err)))
}

func (d *Daemon) writeError(w http.ResponseWriter, status int, message, kind string) {
	d.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}

func (d *Daemon) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(d.logger, w, status, payload)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, events.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func statusForFailure(code decision.FailureCode) int {
	switch code {
	case decision.UnknownApplication:
		return http.StatusNotFound
	case decision.AlreadyDecided, decision.AlreadyPending:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
