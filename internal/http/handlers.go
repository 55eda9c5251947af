package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"sitereports/internal/export"
	applog "sitereports/internal/log"
	"sitereports/internal/middleware/trace"
	"sitereports/internal/services"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed",
				applog.FieldErrorType, applog.ErrorTypeDatabase, applog.FieldError, err)
			ServiceUnavailableError("not ready").Write(w)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleMount treats the request URL as the address bar of a fresh page load.
func (s *Server) handleMount(w http.ResponseWriter, r *http.Request) {
	id := clientID(w, r)
	sess := s.registry.Get(id)

	view, err := sess.Mount(r.Context(), r.URL.Path, r.URL.Query())
	if err != nil {
		s.events.LogError(r.Context(), "Mount failed", err, applog.ComponentFilterSync, applog.OpLoad,
			applog.NewFields().WithErrorType(applog.ErrorTypeInternal))
		InternalServerError("could not load report filter").Write(w)
		return
	}
	s.writeView(w, view)
}

// mounted returns the caller's live session. Requests without a client cookie
// or whose session expired are not mounted; no session is created for them.
func (s *Server) mounted(r *http.Request) (*services.Session, bool) {
	id, ok := existingClientID(r)
	if !ok {
		return nil, false
	}
	return s.registry.Lookup(id)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.mounted(r)
	if !ok {
		s.writeError(w, r, services.ErrNotMounted)
		return
	}
	view, err := sess.View()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeView(w, view)
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.mounted(r)
	if !ok {
		s.writeError(w, r, services.ErrNotMounted)
		return
	}
	update, err := ParseFilterUpdate(r)
	if err != nil {
		applog.FromContext(r.Context()).InfoContext(r.Context(), "Rejected filter update",
			applog.FieldErrorType, applog.ErrorTypeValidation, applog.FieldError, err)
		BadRequestError("invalid filter update").TriggerErrorNotification("invalid filter update").Write(w)
		return
	}
	view, err := sess.Apply(r.Context(), update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeView(w, view)
}

func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.mounted(r)
	if !ok {
		s.writeError(w, r, services.ErrNotMounted)
		return
	}
	if err := sess.Prefetch(r.Context()); err != nil {
		if errors.Is(err, services.ErrNotMounted) {
			s.writeError(w, r, err)
			return
		}
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Prefetch incomplete",
			applog.FieldOperation, applog.OpPrefetch,
			applog.FieldErrorType, applog.ErrorTypeNetwork,
			applog.FieldError, err)
		ErrorResponse(http.StatusBadGateway, "prefetch failed").Write(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.mounted(r)
	if !ok {
		s.writeError(w, r, services.ErrNotMounted)
		return
	}
	format := r.URL.Query().Get("format")

	file, err := sess.Export(r.Context(), format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if format == "" {
		format = export.FormatCSV
	}

	if f, _, ok := sess.Current(); ok {
		s.events.LogReportExported(r.Context(), string(f.ActiveTab), f.Site, f.Supervisor,
			f.StartDate.String(), f.EndDate.String(), file.FileName, format, file.Rows)
	}

	NewHTMXResponse().
		Header("Content-Type", file.ContentType).
		Header("Content-Disposition", `attachment; filename="`+file.FileName+`"`).
		Header("Content-Length", strconv.Itoa(len(file.Content))).
		TriggerNotification(NotificationSuccess, fmt.Sprintf("Exported %d rows to %s", file.Rows, file.FileName), 3000).
		Body(file.Content).
		Write(w)
}

func (s *Server) writeView(w http.ResponseWriter, view services.View) {
	f := view.Filter
	resp := NewHTMXResponse().
		ReplaceURL(view.URL).
		TriggerFilterChanged(string(f.ActiveTab), f.Site, f.Supervisor, f.StartDate.String(), f.EndDate.String())
	if view.Error != "" {
		resp.TriggerFetchFailed(string(f.ActiveTab), view.Error)
	}
	resp.JSON(view).Write(w)
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and hidden behind a generic 500 that carries the request id.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var empty *export.EmptyDatasetError
	switch {
	case errors.As(err, &empty):
		applog.FromContext(r.Context()).InfoContext(r.Context(), "Export refused",
			applog.FieldTab, string(empty.ReportType),
			applog.FieldErrorType, applog.ErrorTypeEmptyDataset)
		UnprocessableEntityError(empty.Error()).TriggerErrorNotification(empty.Error()).Write(w)
	case errors.Is(err, services.ErrNotMounted), errors.Is(err, services.ErrReportNotLoaded):
		ConflictError(err.Error()).TriggerErrorNotification(err.Error()).Write(w)
	case errors.Is(err, export.ErrUnsupportedFormat):
		BadRequestError(err.Error()).TriggerErrorNotification(err.Error()).Write(w)
	default:
		s.events.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, r.URL.Path,
			applog.NewFields().WithErrorType(applog.ErrorTypeInternal))
		msg := "internal error"
		if id := trace.GetRequestID(r.Context()); id != "" {
			msg += " (request " + id + ")"
		}
		InternalServerError(msg).Write(w)
	}
}
