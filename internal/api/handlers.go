package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/surgical-authorization-tracker/internal/surgical"
)

func listCasesHandler(svc *surgical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := surgical.CaseFilter{InsuranceProvider: r.URL.Query().Get("insurance")}
		cases := svc.ListCases(filter)

		resp := CaseListResponse{Cases: make([]CaseResponse, 0, len(cases)), Count: len(cases)}
		for _, c := range cases {
			resp.Cases = append(resp.Cases, toCaseResponse(svc, c))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createCaseHandler(svc *surgical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateCaseRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		c, err := svc.CreateCase(r.Context(), req)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toCaseResponse(svc, c))
	}
}

func getCaseHandler(svc *surgical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := svc.GetCase(chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toCaseResponse(svc, c))
	}
}

func updateCaseHandler(svc *surgical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var candidate surgical.Case
		if err := decodeJSON(w, r, &candidate); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if candidate.ID == "" {
			candidate.ID = id
		}
		if candidate.ID != id {
			writeError(w, http.StatusBadRequest, "case_id_mismatch", "body id does not match path id")
			return
		}

		c, err := svc.UpdateCase(r.Context(), candidate)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toCaseResponse(svc, c))
	}
}

func generateSummaryHandler(svc *surgical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := svc.GenerateSummary(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toCaseResponse(svc, c))
	}
}

func getSettingsHandler(svc *surgical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, maskSettings(svc.Settings()))
	}
}

func putSettingsHandler(svc *surgical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current := svc.Settings()

		// Start from the stored record so omitted fields are kept.
		next := current
		if err := decodeJSON(w, r, &next); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if next.WhatsAppAPIToken == maskToken(current.WhatsAppAPIToken) {
			next.WhatsAppAPIToken = current.WhatsAppAPIToken
		}

		saved, err := svc.SaveSettings(r.Context(), next)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, maskSettings(saved))
	}
}

func addReferenceHandler(svc *surgical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReferenceItemRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		list := surgical.ReferenceList(chi.URLParam(r, "list"))
		saved, err := svc.AddReference(r.Context(), list, req.Item)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, maskSettings(saved))
	}
}

func removeReferenceHandler(svc *surgical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item := chi.URLParam(r, "item")
		if unescaped, err := url.PathUnescape(item); err == nil {
			item = unescaped
		}

		list := surgical.ReferenceList(chi.URLParam(r, "list"))
		saved, err := svc.RemoveReference(r.Context(), list, item)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, maskSettings(saved))
	}
}

func listNoticesHandler(feed NoticeFeed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notices := feed.Recent()
		if notices == nil {
			notices = []surgical.Notice{}
		}
		writeJSON(w, http.StatusOK, NoticeListResponse{Notices: notices})
	}
}

func runSweepHandler(svc *surgical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alerted, err := svc.RunAlertSweep(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SweepResponse{Alerted: alerted, RanAt: time.Now().UTC()})
	}
}

func toCaseResponse(svc *surgical.Service, c surgical.Case) CaseResponse {
	return CaseResponse{Case: c, Overdue: svc.IsOverdue(c)}
}

func maskSettings(s surgical.Settings) surgical.Settings {
	s.WhatsAppAPIToken = maskToken(s.WhatsAppAPIToken)
	return s
}

// maskToken keeps the last four characters of a secret.
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	runes := []rune(token)
	if len(runes) <= 4 {
		return "****"
	}
	return "****" + string(runes[len(runes)-4:])
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, surgical.ErrCaseNotFound):
		writeError(w, http.StatusNotFound, "case_not_found", err.Error())
	case errors.Is(err, surgical.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "item_not_found", err.Error())
	case errors.Is(err, surgical.ErrSummaryInProgress):
		writeError(w, http.StatusConflict, "summary_in_progress", err.Error())
	case errors.Is(err, surgical.ErrDuplicateItem):
		writeError(w, http.StatusConflict, "duplicate_item", err.Error())
	case errors.Is(err, surgical.ErrPatientNameRequired),
		errors.Is(err, surgical.ErrInsuranceRequired):
		writeError(w, http.StatusBadRequest, "missing_required_field", err.Error())
	case errors.Is(err, surgical.ErrCaseIDMismatch):
		writeError(w, http.StatusBadRequest, "case_id_mismatch", err.Error())
	case errors.Is(err, surgical.ErrInvalidCase):
		writeError(w, http.StatusBadRequest, "invalid_case", err.Error())
	case errors.Is(err, surgical.ErrInvalidSettings),
		errors.Is(err, surgical.ErrUnknownToken):
		writeError(w, http.StatusBadRequest, "invalid_settings", err.Error())
	case errors.Is(err, surgical.ErrUnknownList):
		writeError(w, http.StatusNotFound, "unknown_list", err.Error())
	case errors.Is(err, surgical.ErrEmptyItem):
		writeError(w, http.StatusBadRequest, "empty_item", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
