// Package api exposes the alarm over HTTP: alert submission, SOS intents,
// the Telegram webhook and read access to the community directory.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/alertaperu/community-alarm/internal/apperror"
	"github.com/alertaperu/community-alarm/internal/models"
	"github.com/alertaperu/community-alarm/internal/notifications"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// AlertService is the alerting pipeline behind the handlers
type AlertService interface {
	SubmitAlert(ctx context.Context, submission *models.AlertSubmission) (*models.AlertReceipt, error)
	SignalIntent(ctx context.Context, chatID, userID models.ExternalID) (*models.Community, error)
	HandleUpdate(ctx context.Context, update notifications.Update) error
	GetMetrics() string
}

// CommunityReader gives read access to the community directory
type CommunityReader interface {
	Names(ctx context.Context) ([]string, error)
	ResolveByName(ctx context.Context, name string) (*models.Community, error)
	ResolveByExternalChatID(ctx context.Context, chatID models.ExternalID) (*models.Community, error)
}

// Handler serves the HTTP endpoints
type Handler struct {
	service   AlertService
	directory CommunityReader
	validate  *validator.Validate
}

type intentRequest struct {
	ChatID models.ExternalID `json:"chat_id" validate:"required"`
	UserID models.ExternalID `json:"user_id" validate:"required"`
}

type registerRequest struct {
	TelegramID models.ExternalID `json:"telegram_id" validate:"required"`
	Name       string            `json:"name"`
}

type errorResponse struct {
	Error  string              `json:"error"`
	Fields []map[string]string `json:"fields,omitempty"`
}

// NewHandler creates a new handler
func NewHandler(service AlertService, directory CommunityReader) *Handler {
	return &Handler{
		service:   service,
		directory: directory,
		validate:  validator.New(),
	}
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.service.GetMetrics()))
}

func (h *Handler) submitAlert(w http.ResponseWriter, r *http.Request) {
	var submission models.AlertSubmission
	if err := decodeBody(r, &submission); err != nil {
		writeError(w, apperror.InvalidInput("submit alert", err))
		return
	}

	receipt, err := h.service.SubmitAlert(r.Context(), &submission)
	if err != nil {
		writeError(w, err)
		return
	}

	response := *receipt
	if detail, _ := strconv.ParseBool(r.URL.Query().Get("detail")); !detail {
		response.Summary = nil
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) signalIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, apperror.InvalidInput("signal intent", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, apperror.InvalidInput("signal intent", err))
		return
	}

	community, err := h.service.SignalIntent(r.Context(), req.ChatID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "recorded",
		"community": community.Name,
		"user_id":   req.UserID.Normalize(),
	})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, apperror.InvalidInput("register", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, apperror.InvalidInput("register", err))
		return
	}

	logrus.WithField("telegram_id", req.TelegramID.Normalize()).Infof("Registration received for %q", req.Name)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "registered",
		"telegram_id": req.TelegramID.Normalize(),
	})
}

// telegramWebhook always acknowledges so the Bot API does not redeliver
func (h *Handler) telegramWebhook(w http.ResponseWriter, r *http.Request) {
	var update notifications.Update
	if err := decodeBody(r, &update); err != nil {
		logrus.Warnf("Ignoring unreadable webhook update: %v", err)
	} else if err := h.service.HandleUpdate(r.Context(), update); err != nil {
		logrus.Errorf("Failed to handle update %d: %v", update.UpdateID, err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listCommunities(w http.ResponseWriter, r *http.Request) {
	names, err := h.directory.Names(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"communities": names})
}

func (h *Handler) getCommunity(w http.ResponseWriter, r *http.Request) {
	community, err := h.directory.ResolveByName(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, community)
}

func (h *Handler) getCommunityByChat(w http.ResponseWriter, r *http.Request) {
	chatID := models.ExternalID(mux.Vars(r)["chatId"])
	community, err := h.directory.ResolveByExternalChatID(r.Context(), chatID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, community)
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	status := apperror.HTTPStatus(err)
	response := errorResponse{Error: err.Error()}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		response.Fields = appErr.Fields
	}
	if status >= http.StatusInternalServerError {
		logrus.Errorf("Request failed: %v", err)
	}

	writeJSON(w, status, response)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}
