package reporting

import (
	"bytes"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shepherd/internal/analytics"
	"shepherd/internal/auth"
	"shepherd/internal/export"
	"shepherd/internal/pkg/httputil"
)

// reportQuery is the query string every report endpoint accepts. Dates are
// checked for shape here and parsed as calendar dates afterwards.
type reportQuery struct {
	StartDate   string `query:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate     string `query:"endDate" validate:"required,datetime=2006-01-02"`
	HouseholdID string `query:"householdId" validate:"omitempty,uuid"`
	Format      string `query:"format" validate:"omitempty,oneof=csv json xlsx"`
}

type Handler struct {
	service Service
	now     func() time.Time
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

// Routes mounts under /api/reports behind auth.Middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/attendance", h.handleAttendance)
	r.Get("/giving", h.handleGiving)
	r.Get("/giving/export", h.handleGivingExport)
	return r
}

func (h *Handler) handleAttendance(w http.ResponseWriter, r *http.Request) {
	scope, _, rng, ok := h.parse(w, r)
	if !ok {
		return
	}
	report, err := h.service.AttendanceReport(r.Context(), scope, rng)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, report)
}

func (h *Handler) handleGiving(w http.ResponseWriter, r *http.Request) {
	scope, q, rng, ok := h.parse(w, r)
	if !ok {
		return
	}
	report, err := h.service.GivingReport(r.Context(), scope, rng, householdOf(q))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, report)
}

// givingExport is the JSON form of the export.
type givingExport struct {
	Rows  []export.GivingRow `json:"rows"`
	Total analytics.Amounts  `json:"total"`
}

func (h *Handler) handleGivingExport(w http.ResponseWriter, r *http.Request) {
	scope, q, rng, ok := h.parse(w, r)
	if !ok {
		return
	}
	rows, err := h.service.GivingExport(r.Context(), scope, rng, householdOf(q))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	today := analytics.DateOf(h.now())
	var (
		buf         bytes.Buffer
		contentType string
	)
	switch q.Format {
	case "", "csv":
		contentType = "text/csv"
		err = export.WriteCSV(&buf, export.GivingTable(rows))
	case "xlsx":
		contentType = export.XLSXContentType
		err = export.WriteXLSX(&buf, export.GivingTable(rows))
	case "json":
		if rows == nil {
			rows = []export.GivingRow{}
		}
		httputil.OK(w, givingExport{Rows: rows, Total: export.TotalOf(rows)})
		return
	default:
		httputil.WriteError(w, ErrUnknownFormat)
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	ext := q.Format
	if ext == "" {
		ext = "csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(today, ext)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// parse resolves the caller's scope and validates the report query. On
// failure it has already written the response.
func (h *Handler) parse(w http.ResponseWriter, r *http.Request) (auth.Scope, reportQuery, analytics.DateRange, bool) {
	scope, err := auth.ScopeFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return auth.Scope{}, reportQuery{}, analytics.DateRange{}, false
	}

	v := r.URL.Query()
	q := reportQuery{
		StartDate:   v.Get("startDate"),
		EndDate:     v.Get("endDate"),
		HouseholdID: v.Get("householdId"),
		Format:      v.Get("format"),
	}
	if err := httputil.Validate.Struct(q); err != nil {
		httputil.JSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error:   "validation failed",
			Details: httputil.FieldErrors(err),
		})
		return auth.Scope{}, reportQuery{}, analytics.DateRange{}, false
	}

	rng, err := analytics.ParseDateRange(q.StartDate, q.EndDate)
	if err != nil {
		httputil.WriteError(w, err)
		return auth.Scope{}, reportQuery{}, analytics.DateRange{}, false
	}
	return scope, q, rng, true
}

func householdOf(q reportQuery) *uuid.UUID {
	if q.HouseholdID == "" {
		return nil
	}
	id := uuid.MustParse(q.HouseholdID)
	return &id
}
