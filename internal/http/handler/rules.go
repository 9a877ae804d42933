package handler

import (
	"net/http"

	"waflow/internal/auth"
	"waflow/internal/bot"

	"github.com/go-chi/chi/v5"
)

type RuleHandler struct {
	Store *bot.Store
}

func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())

	var spec bot.RuleSpec
	if !decode(w, r, &spec) {
		return
	}
	rule := spec.ToRule()
	rule.ID = ""
	rule.Owner = owner
	if err := h.Store.Create(r.Context(), &rule); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	list, err := h.Store.List(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []bot.Rule{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	rule, err := h.Store.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())

	var spec bot.RuleSpec
	if !decode(w, r, &spec) {
		return
	}
	rule := spec.ToRule()
	rule.ID = chi.URLParam(r, "id")
	rule.Owner = owner
	if err := h.Store.Update(r.Context(), &rule); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

type setActiveReq struct {
	Active bool `json:"active"`
}

func (h *RuleHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())

	var req setActiveReq
	if !decode(w, r, &req) {
		return
	}
	if err := h.Store.SetActive(r.Context(), owner, chi.URLParam(r, "id"), req.Active); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	if err := h.Store.Delete(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
