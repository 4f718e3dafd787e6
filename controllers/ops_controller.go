package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"atmcore/apperrors"
	"atmcore/middleware"
	"atmcore/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// CardBlocker - ручная блокировка и разблокировка карт оператором
type CardBlocker interface {
	BlockCard(ctx context.Context, cardID uuid.UUID, reason string) error
	UnblockCard(ctx context.Context, cardID uuid.UUID) error
}

// BlockCardRequest представляет DTO для ручной блокировки карты
type BlockCardRequest struct {
	Reason string `json:"reason" validate:"required,max=50"`
}

// OpsController отдает служебные эндпоинты
type OpsController struct {
	store    Pinger
	cards    CardBlocker
	validate *validator.Validate
	metrics  *utils.Metrics
	log      *logrus.Logger
}

// NewOpsController создает новый экземпляр OpsController
func NewOpsController(store Pinger, cards CardBlocker, metrics *utils.Metrics, log *logrus.Logger) *OpsController {
	return &OpsController{
		store:    store,
		cards:    cards,
		validate: newValidator(),
		metrics:  metrics,
		log:      log,
	}
}

// Health сообщает, доступно ли хранилище
func (oc *OpsController) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]interface{}{"status": "ok", "time": time.Now().UTC().Format(timeLayout)}
	if err := oc.store.Ping(ctx); err != nil {
		oc.log.WithError(err).Warn("Health check failed")
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
	}

	writeJSON(w, status, body)
}

// Metrics отдает снимок метрик
func (oc *OpsController) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, oc.metrics.GetMetricsSnapshot())
}

// BlockCard бессрочно блокирует карту
func (oc *OpsController) BlockCard(w http.ResponseWriter, r *http.Request) {
	cardID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		oc.writeError(w, apperrors.Validation("id", "must be a valid UUID"))
		return
	}

	var req BlockCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		oc.writeError(w, apperrors.Wrap(apperrors.KindValidation, "malformed request body", err))
		return
	}
	if err := oc.validate.Struct(req); err != nil {
		oc.writeError(w, apperrors.Validation("reason", "is required and at most 50 characters"))
		return
	}

	if err := oc.cards.BlockCard(r.Context(), cardID, req.Reason); err != nil {
		oc.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Card blocked"})
}

// UnblockCard снимает блокировку карты и обнуляет счетчик попыток
func (oc *OpsController) UnblockCard(w http.ResponseWriter, r *http.Request) {
	cardID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		oc.writeError(w, apperrors.Validation("id", "must be a valid UUID"))
		return
	}

	if err := oc.cards.UnblockCard(r.Context(), cardID); err != nil {
		oc.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Card unblocked"})
}

func (oc *OpsController) writeError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	status := apperrors.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		oc.log.WithError(err).Error("Ops request failed")
	}
	oc.metrics.RecordError(string(kind))
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"code":    kind,
		"message": apperrors.PublicMessage(err),
	})
}

// NewOpsRouter собирает gorilla/mux роутер служебного сервера
func NewOpsRouter(oc *OpsController, log *logrus.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(log))
	router.HandleFunc("/health", oc.Health).Methods(http.MethodGet)
	router.HandleFunc("/metrics", oc.Metrics).Methods(http.MethodGet)
	router.HandleFunc("/cards/{id}/block", oc.BlockCard).Methods(http.MethodPost)
	router.HandleFunc("/cards/{id}/unblock", oc.UnblockCard).Methods(http.MethodPost)
	return router
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
