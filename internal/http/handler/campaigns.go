package handler

import (
	"net/http"

	"waflow/internal/auth"
	"waflow/internal/campaign"

	"github.com/go-chi/chi/v5"
)

type CampaignHandler struct {
	Svc *campaign.Service
}

// Create accepts the campaign and expands it in the background; clients
// poll the report for the outcome.
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())

	var req campaign.Request
	if !decode(w, r, &req) {
		return
	}
	req.Owner = owner

	c, err := h.Svc.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, c)
}

func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	list, err := h.Svc.List(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []campaign.Campaign{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *CampaignHandler) Report(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	rep, err := h.Svc.Report(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	c, err := h.Svc.Pause(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CampaignHandler) Resume(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	c, err := h.Svc.Resume(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CampaignHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	if err := h.Svc.Delete(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
