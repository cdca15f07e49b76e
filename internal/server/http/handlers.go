package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/export"
	"github.com/helixir/snowball-review/internal/observability"
	"github.com/helixir/snowball-review/internal/snowball"
	"github.com/helixir/snowball-review/internal/storage"
)

const (
	defaultPageSize    = 50
	maxPageSize        = 500
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

type reviewRequest struct {
	Status string `json:"status" validate:"required,oneof=pending included excluded maybe"`
	Note   string `json:"note" validate:"max=10000"`
}

type listPapersResponse struct {
	Papers     []*domain.Paper `json:"papers"`
	TotalCount int             `json:"total_count"`
	Limit      int             `json:"limit"`
	Offset     int             `json:"offset"`
}

type reviewQueueResponse struct {
	Papers     []*domain.Paper `json:"papers"`
	TotalCount int             `json:"total_count"`
}

type iterationsResponse struct {
	CurrentIteration int                     `json:"current_iteration"`
	MaxIterations    int                     `json:"max_iterations"`
	ShouldContinue   bool                    `json:"should_continue"`
	Iterations       []domain.IterationStats `json:"iterations"`
}

type runIterationResponse struct {
	Stats          domain.IterationStats `json:"stats"`
	ShouldContinue bool                  `json:"should_continue"`
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project, err := s.store.LoadProject(ctx)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	summary, err := s.engine.Summary(ctx, project, s.store)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status domain.PaperStatus
	if v := q.Get("status"); v != "" {
		parsed, err := domain.ParsePaperStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "status must be one of pending, included, excluded, maybe")
			return
		}
		status = parsed
	}

	var source domain.PaperSource
	if v := q.Get("source"); v != "" {
		source = domain.PaperSource(strings.ToLower(strings.TrimSpace(v)))
		if !source.IsValid() {
			writeError(w, http.StatusBadRequest, "source must be one of seed, backward, forward")
			return
		}
	}

	limit, offset, ok := parsePaginationParams(w, r)
	if !ok {
		return
	}

	papers, err := s.store.LoadAllPapers(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	filtered := papers[:0]
	for _, p := range papers {
		if status != "" && p.Status != status {
			continue
		}
		if source != "" && p.Source != source {
			continue
		}
		filtered = append(filtered, p)
	}
	storage.SortPapers(filtered)

	total := len(filtered)
	start := min(offset, total)
	end := min(start+limit, total)
	writeJSON(w, http.StatusOK, listPapersResponse{
		Papers:     filtered[start:end],
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *Server) reviewQueue(w http.ResponseWriter, r *http.Request) {
	papers, err := s.engine.PapersForReview(r.Context(), s.store)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if papers == nil {
		papers = []*domain.Paper{}
	}
	writeJSON(w, http.StatusOK, reviewQueueResponse{Papers: papers, TotalCount: len(papers)})
}

func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	paper, err := s.store.LoadPaper(r.Context(), chi.URLParam(r, "paperID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paper)
}

func (s *Server) updateReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	paper, err := s.engine.UpdateReview(r.Context(), s.store, chi.URLParam(r, "paperID"),
		domain.PaperStatus(req.Status), req.Note)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paper)
}

func (s *Server) listIterations(w http.ResponseWriter, r *http.Request) {
	project, err := s.store.LoadProject(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	iterations := make([]domain.IterationStats, 0, len(project.IterationStats))
	for _, n := range project.SortedIterations() {
		iterations = append(iterations, project.IterationStats[n])
	}
	writeJSON(w, http.StatusOK, iterationsResponse{
		CurrentIteration: project.CurrentIteration,
		MaxIterations:    project.MaxIterations,
		ShouldContinue:   snowball.ShouldContinue(project),
		Iterations:       iterations,
	})
}

func (s *Server) runIteration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project, err := s.store.LoadProject(ctx)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !snowball.ShouldContinue(project) {
		writeError(w, http.StatusConflict, "no further iterations: limit reached or previous iteration found nothing")
		return
	}

	stats, err := s.engine.RunIteration(ctx, project, s.store)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runIterationResponse{
		Stats:          stats,
		ShouldContinue: snowball.ShouldContinue(project),
	})
}

func (s *Server) exportPapers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil || format == export.FormatAll {
		writeError(w, http.StatusBadRequest, "format must be bibtex or csv")
		return
	}
	opts := export.Options{}
	if v := q.Get("included_only"); v != "" {
		includedOnly, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "included_only must be a boolean")
			return
		}
		opts.IncludedOnly = includedOnly
	}

	papers, err := s.store.LoadAllPapers(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	var buf bytes.Buffer
	contentType := "application/x-bibtex"
	if format == export.FormatCSV {
		contentType = "text/csv"
		err = export.WriteCSV(&buf, export.Select(papers, opts))
	} else {
		err = export.WriteBibTeX(&buf, export.Select(papers, opts))
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(format, opts)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// decodeAndValidate reads a JSON body into dst and validates its tags,
// writing a 400 response on failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if len(body) > maxRequestBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage describes the first failed field without echoing input.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return field + " must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	default:
		return field + " is invalid"
	}
}

// writeDomainError maps domain errors onto HTTP statuses. Internal details
// are logged, never returned.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrIterationLimit):
		writeError(w, http.StatusConflict, "no further iterations allowed")
	case errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusConflict, "operation cancelled")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, domain.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "timeout")
	default:
		logger := observability.LoggerFromContext(r.Context())
		logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parsePaginationParams reads limit and offset, writing a 400 response for
// malformed values. Limits above maxPageSize are clamped.
func parsePaginationParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = parsed
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = parsed
	}
	return limit, offset, true
}
