package ledger

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	model "github.com/loyaltyworks/ledger/internal/models"
	service "github.com/loyaltyworks/ledger/internal/services"
)

type LedgerHandler struct {
	router     *mux.Router
	ledger     *service.LedgerService
	enrollment *service.EnrollmentService
	logger     *zap.Logger
}

func NewHandler(ledger *service.LedgerService, enrollment *service.EnrollmentService, logger *zap.Logger) *LedgerHandler {
	router := mux.NewRouter()
	handler := &LedgerHandler{router, ledger, enrollment, logger}
	router.Use(MiddlewareLog())
	router.HandleFunc("/award", handler.AwardHandler).Methods(http.MethodPost)
	router.HandleFunc("/redeem", handler.RedeemHandler).Methods(http.MethodPost)
	router.HandleFunc("/invite", handler.InviteHandler).Methods(http.MethodPost)
	router.HandleFunc("/invitation/{id}/respond", handler.RespondHandler).Methods(http.MethodPost)
	router.HandleFunc("/balance", handler.BalanceHandler).Methods(http.MethodGet)
	router.HandleFunc("/history", handler.HistoryHandler).Methods(http.MethodGet)
	router.HandleFunc("/activity", handler.ActivityHandler).Methods(http.MethodGet)
	router.HandleFunc("/deactivate", handler.DeactivateHandler).Methods(http.MethodPost)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	return handler
}

func (h *LedgerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *LedgerHandler) Log(msg string, service string, err error) {
	h.logger.Error(msg,
		zap.String("service", service),
		zap.Error(err),
	)
}

// DTO

type AwardRequest struct {
	model.AccountRef
	Points      int64  `json:"points"`
	SourceRef   string `json:"sourceReference"`
	Description string `json:"description"`
}

type RedeemRequest struct {
	model.AccountRef
	Points int64  `json:"points"`
	Reason string `json:"reason"`
}

type RespondRequest struct {
	Accept bool `json:"accept"`
}

type MutationResponse struct {
	Account    string `json:"accountId"`
	NewBalance int64  `json:"newBalance"`
	Tnx        string `json:"transactionId"`
	Replayed   bool   `json:"replayed,omitempty"`
}

type TnxResponse struct {
	ID          string `json:"id"`
	Direction   string `json:"direction"`
	Points      int64  `json:"points"`
	Description string `json:"description"`
	SourceRef   string `json:"sourceReference,omitempty"`
	Actor       string `json:"actorId"`
	CreatedAt   string `json:"createdAt"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// актор уже аутентифицирован внешним сервисом
func actorFromRequest(r *http.Request) model.Actor {
	return model.Actor{
		ID:   r.Header.Get("X-Actor-Id"),
		Role: r.Header.Get("X-Actor-Role"),
	}
}

// стабильный машиночитаемый вид ошибки
func errorKind(err error) (kind string, status int) {
	switch {
	case errors.Is(err, model.ErrInvalidAmount):
		return "invalid_amount", http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInsufficientBalance):
		return "insufficient_balance", http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrAccountUnavailable):
		return "account_unavailable", http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrDuplicatePending):
		return "duplicate_pending", http.StatusConflict
	case errors.Is(err, model.ErrAlreadyResolved):
		return "already_resolved", http.StatusConflict
	case errors.Is(err, model.ErrForbidden):
		return "forbidden", http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return "not_found", http.StatusNotFound
	case errors.Is(err, model.ErrStoreUnavailable):
		return "store_unavailable", http.StatusServiceUnavailable
	}
	return "internal", http.StatusInternalServerError
}

func (h *LedgerHandler) respondError(w http.ResponseWriter, err error) {
	kind, status := errorKind(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: kind, Message: err.Error()})
}

func (h *LedgerHandler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func refFromQuery(r *http.Request) model.AccountRef {
	q := r.URL.Query()
	return model.AccountRef{
		Customer: q.Get("customerId"),
		Business: q.Get("businessId"),
		Program:  q.Get("programId"),
	}
}

// Начисление баллов
func (h *LedgerHandler) AwardHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Body is empty", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	req := &AwardRequest{}
	err = json.Unmarshal(body, req)
	if err != nil {
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}

	res, err := h.ledger.Award(r.Context(), actorFromRequest(r), req.AccountRef, req.Points, req.SourceRef, req.Description)
	if err != nil {
		h.Log("Award", "AwardHandler", err)
		h.respondError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	h.respondJSON(w, status, MutationResponse{
		Account:    res.Account.String(),
		NewBalance: res.NewBalance,
		Tnx:        res.Tnx.String(),
		Replayed:   res.Replayed,
	})
}

// Списание баллов
func (h *LedgerHandler) RedeemHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Body is empty", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	req := &RedeemRequest{}
	err = json.Unmarshal(body, req)
	if err != nil {
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}

	res, err := h.ledger.Redeem(r.Context(), actorFromRequest(r), req.AccountRef, req.Points, req.Reason)
	if err != nil {
		h.Log("Redeem", "RedeemHandler", err)
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, MutationResponse{
		Account:    res.Account.String(),
		NewBalance: res.NewBalance,
		Tnx:        res.Tnx.String(),
	})
}

// Пригласить клиента
func (h *LedgerHandler) InviteHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Body is empty", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	ref := &model.AccountRef{}
	err = json.Unmarshal(body, ref)
	if err != nil {
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}

	invitation, err := h.enrollment.Invite(r.Context(), actorFromRequest(r), *ref)
	if err != nil {
		h.Log("Invite", "InviteHandler", err)
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]string{"invitationId": invitation.String()})
}

// Принять/отклонить приглашение
func (h *LedgerHandler) RespondHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	invitation, err := uuid.Parse(vars["id"])
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Body is empty", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	req := &RespondRequest{}
	err = json.Unmarshal(body, req)
	if err != nil {
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}

	account, err := h.enrollment.Respond(r.Context(), actorFromRequest(r), invitation, req.Accept)
	if err != nil {
		h.Log("Respond", "RespondHandler", err)
		h.respondError(w, err)
		return
	}
	resp := map[string]string{}
	if account != uuid.Nil {
		resp["accountId"] = account.String()
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// Баланс
func (h *LedgerHandler) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	balance, err := h.ledger.GetBalance(r.Context(), actorFromRequest(r), refFromQuery(r))
	if err != nil {
		h.Log("GetBalance", "BalanceHandler", err)
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, balance)
}

// История транзакций
func (h *LedgerHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	tnxs, err := h.ledger.GetHistory(r.Context(), actorFromRequest(r), refFromQuery(r), limit, offset)
	if err != nil {
		h.Log("GetHistory", "HistoryHandler", err)
		h.respondError(w, err)
		return
	}
	resp := make([]TnxResponse, len(tnxs))
	for i, tnx := range tnxs {
		direction := "EARN"
		if tnx.Direction == model.REDEEM {
			direction = "REDEEM"
		}
		resp[i] = TnxResponse{
			ID:          tnx.UUID.String(),
			Direction:   direction,
			Points:      tnx.Points,
			Description: tnx.Description,
			SourceRef:   tnx.SourceRef,
			Actor:       tnx.Actor,
			CreatedAt:   tnx.CreatedAt.Format("2006-01-02 15:04:05"),
		}
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// Лента активности
func (h *LedgerHandler) ActivityHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	acts, err := h.ledger.GetActivities(r.Context(), actorFromRequest(r), refFromQuery(r), limit)
	if err != nil {
		h.Log("GetActivities", "ActivityHandler", err)
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, acts)
}

// Деактивация карты
func (h *LedgerHandler) DeactivateHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Body is empty", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	ref := &model.AccountRef{}
	err = json.Unmarshal(body, ref)
	if err != nil {
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}

	err = h.enrollment.Deactivate(r.Context(), actorFromRequest(r), *ref)
	if err != nil {
		h.Log("Deactivate", "DeactivateHandler", err)
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
