// Package api exposes the ledger service as a JSON HTTP API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/splitledger/splitledger/internal/auth"
	"github.com/splitledger/splitledger/internal/calculator"
	"github.com/splitledger/splitledger/internal/group"
	"github.com/splitledger/splitledger/internal/ledger"
	"github.com/splitledger/splitledger/internal/metrics"
	"github.com/splitledger/splitledger/internal/middleware"
	"github.com/splitledger/splitledger/internal/service"
)

// Handler holds the dependencies shared by all HTTP handlers. It depends
// on the Authenticator interface, not a concrete implementation, so the
// auth method can be swapped without touching handler code.
type Handler struct {
	svc      *service.Ledger
	authn    auth.Authenticator
	jwt      *auth.JWTManager
	validate *validator.Validate
	metrics  *metrics.Metrics
}

// NewHandler creates the API handler set.
func NewHandler(svc *service.Ledger, authn auth.Authenticator, jwt *auth.JWTManager, m *metrics.Metrics) *Handler {
	return &Handler{
		svc:      svc,
		authn:    authn,
		jwt:      jwt,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		metrics:  m,
	}
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"required"`
	Password    string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type tokenResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type createGroupRequest struct {
	Name      string   `json:"name" validate:"required"`
	MemberIDs []string `json:"member_ids" validate:"required,min=1,dive,required"`
}

type addMemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type expenseRequest struct {
	Description    string    `json:"description" validate:"required"`
	Amount         float64   `json:"amount" validate:"required,gt=0"`
	PayerID        string    `json:"payer_id" validate:"required"`
	ParticipantIDs []string  `json:"participant_ids" validate:"required,min=1,dive,required"`
	SplitType      string    `json:"split_type" validate:"required,oneof=equal exact percentage"`
	Values         []float64 `json:"values"`
}

// settlementRequest records a payment made by the authenticated user.
// FromUserID is optional and, when set, must match the session user.
type settlementRequest struct {
	FromUserID string  `json:"from_user_id"`
	ToUserID   string  `json:"to_user_id" validate:"required"`
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	Note       string  `json:"note"`
}

// errPayerMismatch rejects settlements recorded on behalf of someone else.
var errPayerMismatch = errors.New("settlements can only be recorded by the paying user")

type directExpenseRequest struct {
	Description string    `json:"description" validate:"required"`
	Amount      float64   `json:"amount" validate:"required,gt=0"`
	OtherUserID string    `json:"other_user_id" validate:"required"`
	SplitType   string    `json:"split_type" validate:"required,oneof=equal exact percentage"`
	Values      []float64 `json:"values"`
}

type balancesResponse struct {
	UserID   string             `json:"user_id"`
	Balances map[string]float64 `json:"balances"`
	Owed     float64            `json:"owed"`
	Owing    float64            `json:"owing"`
}

type simplifyResponse struct {
	Balances     ledger.Snapshot `json:"balances"`
	EdgesRemoved int             `json:"edges_removed"`
}

// decode parses the JSON body into dst and runs validation.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return h.validate.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeServiceError maps domain errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrGroupNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, ledger.ErrUnknownMember):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, group.ErrNotAMember):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, group.ErrOpenBalance):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, group.ErrInvalidAmount),
		errors.Is(err, calculator.ErrSplitMismatch),
		errors.Is(err, calculator.ErrValueCount),
		errors.Is(err, calculator.ErrNoParticipants),
		errors.Is(err, calculator.ErrUnknownSplitType):
		writeError(w, http.StatusBadRequest, err)
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.authn.Register(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailExists):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeServiceError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.authn.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials)
		return
	}

	token, err := h.jwt.Generate(user)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Token: token,
		User: userResponse{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
		},
	})
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	g, err := h.svc.CreateGroup(r.Context(), req.Name, middleware.GetUserID(r.Context()), req.MemberIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	groupID := chi.URLParam(r, "id")
	if err := h.svc.AddUserToGroup(r.Context(), groupID, req.UserID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userID")
	if err := h.svc.RemoveUserFromGroup(r.Context(), groupID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) addExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	expense, err := h.svc.AddExpense(
		r.Context(),
		chi.URLParam(r, "id"),
		req.Description,
		req.Amount,
		req.PayerID,
		req.ParticipantIDs,
		calculator.SplitType(req.SplitType),
		req.Values,
		middleware.GetUserID(r.Context()),
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (h *Handler) addSettlement(w http.ResponseWriter, r *http.Request) {
	var req settlementRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	payerID := middleware.GetUserID(r.Context())
	if req.FromUserID != "" && req.FromUserID != payerID {
		writeError(w, http.StatusForbidden, errPayerMismatch)
		return
	}

	settlement, err := h.svc.Settle(
		r.Context(),
		chi.URLParam(r, "id"),
		payerID,
		req.ToUserID,
		req.Amount,
		payerID,
		req.Note,
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, settlement)
}

func (h *Handler) simplify(w http.ResponseWriter, r *http.Request) {
	snapshot, removed, err := h.svc.Simplify(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, simplifyResponse{Balances: snapshot, EdgesRemoved: removed})
}

func (h *Handler) groupBalances(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userID")

	balances, err := h.svc.Balances(userID, groupID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	owed, owing := ledger.Totals(balances)
	writeJSON(w, http.StatusOK, balancesResponse{
		UserID:   userID,
		Balances: balances,
		Owed:     owed,
		Owing:    owing,
	})
}

func (h *Handler) listGroupExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.svc.ListGroupExpenses(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (h *Handler) listGroupSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := h.svc.ListGroupSettlements(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlements)
}

func (h *Handler) directBalances(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	balances, err := h.svc.Balances(userID, "")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	owed, owing := ledger.Totals(balances)
	writeJSON(w, http.StatusOK, balancesResponse{
		UserID:   userID,
		Balances: balances,
		Owed:     owed,
		Owing:    owing,
	})
}

func (h *Handler) addDirectExpense(w http.ResponseWriter, r *http.Request) {
	var req directExpenseRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	expense, err := h.svc.AddDirectExpense(
		r.Context(),
		req.Description,
		req.Amount,
		middleware.GetUserID(r.Context()),
		req.OtherUserID,
		calculator.SplitType(req.SplitType),
		req.Values,
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (h *Handler) addDirectSettlement(w http.ResponseWriter, r *http.Request) {
	var req settlementRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	payerID := middleware.GetUserID(r.Context())
	if req.FromUserID != "" && req.FromUserID != payerID {
		writeError(w, http.StatusForbidden, errPayerMismatch)
		return
	}

	settlement, err := h.svc.SettleDirect(r.Context(), payerID, req.ToUserID, req.Amount, req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, settlement)
}
