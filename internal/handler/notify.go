package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"user-notifier/internal/manager"
	"user-notifier/internal/metrics"
	"user-notifier/internal/model"
	"user-notifier/internal/store"
)

// NotifyHandler serves the per-user notification endpoints.
type NotifyHandler struct {
	manager *manager.Manager
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewNotifyHandler(m *manager.Manager, logger *slog.Logger, mt *metrics.Metrics) *NotifyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyHandler{
		manager: m,
		logger:  logger,
		metrics: mt,
	}
}

// Mount registers the user routes on r.
func (h *NotifyHandler) Mount(r chi.Router) {
	r.Route("/v1/user/{userId}", func(r chi.Router) {
		r.Get("/", h.getPreferences)
		r.Put("/", h.updateContact)
		r.Post("/notify", h.notify)
		r.Post("/subscribe", h.subscribe)
		r.Post("/unsubscribe", h.unsubscribe)
	})
}

func (h *NotifyHandler) notify(w http.ResponseWriter, r *http.Request) {
	var req model.NotificationRequest
	if !h.decode(w, r, "notify", &req) {
		return
	}
	resp, err := h.manager.Notify(r.Context(), chi.URLParam(r, "userId"), req)
	h.respond(w, r, "notify", resp, err)
}

func (h *NotifyHandler) subscribe(w http.ResponseWriter, r *http.Request) {
	var req model.SubscriptionRequest
	if !h.decode(w, r, "subscribe", &req) {
		return
	}
	resp, err := h.manager.Subscribe(r.Context(), chi.URLParam(r, "userId"), req)
	h.respond(w, r, "subscribe", resp, err)
}

func (h *NotifyHandler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req model.SubscriptionRequest
	if !h.decode(w, r, "unsubscribe", &req) {
		return
	}
	resp, err := h.manager.Unsubscribe(r.Context(), chi.URLParam(r, "userId"), req)
	h.respond(w, r, "unsubscribe", resp, err)
}

func (h *NotifyHandler) updateContact(w http.ResponseWriter, r *http.Request) {
	var req model.ContactRequest
	if !h.decode(w, r, "update_contact", &req) {
		return
	}
	resp, err := h.manager.UpdateContact(r.Context(), chi.URLParam(r, "userId"), req)
	h.respond(w, r, "update_contact", resp, err)
}

func (h *NotifyHandler) getPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.manager.Preferences(r.Context(), chi.URLParam(r, "userId"))
	if errors.Is(err, store.ErrNotFound) {
		h.respond(w, r, "get_preferences", model.NotFound(), nil)
		return
	}
	if err != nil {
		h.respond(w, r, "get_preferences", model.Response{}, err)
		return
	}

	h.metrics.APIRequest("get_preferences", http.StatusOK)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(prefs)
}

func (h *NotifyHandler) decode(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.metrics.APIRequest(op, http.StatusBadRequest)
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *NotifyHandler) respond(w http.ResponseWriter, r *http.Request, op string, resp model.Response, err error) {
	if err != nil {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("operation", op),
			slog.String("user_id", chi.URLParam(r, "userId")),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("error", err.Error()))
		h.metrics.APIRequest(op, http.StatusInternalServerError)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.metrics.APIRequest(op, resp.StatusCode)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write([]byte(resp.Body))
}
