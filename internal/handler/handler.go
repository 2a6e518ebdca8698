package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/digital-banking/internal/middleware"
	"github.com/Dan9191/digital-banking/internal/models"
	"github.com/Dan9191/digital-banking/internal/service"
)

// Handler exposes the service over HTTP
type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Router builds the complete route table
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logging(h.log))

	// Public routes
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	// Protected routes
	api := r.PathPrefix("/").Subrouter()
	api.Use(middleware.AuthMiddleware())

	api.HandleFunc("/auth/profile", h.Profile).Methods(http.MethodGet)
	api.HandleFunc("/auth/change-password", h.ChangePassword).Methods(http.MethodPost)

	api.HandleFunc("/accounts", h.ListAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts/debit", h.Debit).Methods(http.MethodPost)
	api.HandleFunc("/accounts/credit", h.Credit).Methods(http.MethodPost)
	api.HandleFunc("/accounts/transfer", h.Transfer).Methods(http.MethodPost)
	api.HandleFunc("/accounts/current", h.OpenCurrentAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts/saving", h.OpenSavingsAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}", h.GetAccount).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/operations", h.AccountHistory).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/pageOperations", h.History).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/status", h.SetAccountStatus).Methods(http.MethodPut)

	api.HandleFunc("/customers", h.ListCustomers).Methods(http.MethodGet)
	api.HandleFunc("/customers", h.SaveCustomer).Methods(http.MethodPost)
	api.HandleFunc("/customers/search", h.SearchCustomers).Methods(http.MethodGet)
	api.HandleFunc("/customers/{id:[0-9]+}", h.GetCustomer).Methods(http.MethodGet)
	api.HandleFunc("/customers/{id:[0-9]+}", h.UpdateCustomer).Methods(http.MethodPut)
	api.HandleFunc("/customers/{id:[0-9]+}", h.DeleteCustomer).Methods(http.MethodDelete)
	api.HandleFunc("/customers/{id:[0-9]+}/accounts", h.ListCustomerAccounts).Methods(http.MethodGet)

	api.HandleFunc("/dashboard/stats", h.DashboardStats).Methods(http.MethodGet)
	api.HandleFunc("/key-rate", h.KeyRate).Methods(http.MethodGet)
	return r
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("malformed request body: %v: %w", err, models.ErrInvalidArgument)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", mux.Vars(r)["id"], models.ErrInvalidArgument)
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, models.ErrInvalidArgument)
	}
	return n, nil
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles user authentication. Credentials come as a form or as JSON.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decode(r, &req); err != nil {
			h.writeErr(w, r, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.writeErr(w, r, fmt.Errorf("malformed form: %v: %w", err, models.ErrInvalidArgument))
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	}
	token, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access-token": token})
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Profile(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), req.OldPassword, req.NewPassword); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// accounts

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListAccounts(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetAccount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type currentAccountRequest struct {
	CustomerID     int64           `json:"customer_id"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	OverDraft      decimal.Decimal `json:"over_draft"`
}

// OpenCurrentAccount handles current account creation
func (h *Handler) OpenCurrentAccount(w http.ResponseWriter, r *http.Request) {
	var req currentAccountRequest
	if err := decode(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	a, err := h.svc.OpenCurrentAccount(r.Context(), req.CustomerID, req.InitialBalance, req.OverDraft)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type savingAccountRequest struct {
	CustomerID     int64            `json:"customer_id"`
	InitialBalance decimal.Decimal  `json:"initial_balance"`
	InterestRate   *decimal.Decimal `json:"interest_rate"`
}

// OpenSavingsAccount handles savings account creation; without an
// interest rate the account opens at the reference rate
func (h *Handler) OpenSavingsAccount(w http.ResponseWriter, r *http.Request) {
	var req savingAccountRequest
	if err := decode(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	a, err := h.svc.OpenSavingsAccount(r.Context(), req.CustomerID, req.InitialBalance, req.InterestRate)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetAccountStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	status, err := models.ParseAccountStatus(req.Status)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	a, err := h.svc.SetAccountStatus(r.Context(), mux.Vars(r)["id"], status)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ledger

type movementRequest struct {
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func (h *Handler) Debit(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := decode(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	op, err := h.svc.Debit(r.Context(), req.AccountID, req.Amount, req.Description)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := decode(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	op, err := h.svc.Credit(r.Context(), req.AccountID, req.Amount, req.Description)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

type transferRequest struct {
	RequestID   string          `json:"request_id"`
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Transfer moves money between two accounts. The request id may also be
// given in the Idempotency-Key header.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decode(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("Idempotency-Key")
	}
	res, err := h.svc.Transfer(r.Context(), service.TransferRequest{
		RequestID:   req.RequestID,
		Source:      req.Source,
		Destination: req.Destination,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// history

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 0)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	size, err := queryInt(r, "size", 5)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	hp, err := h.svc.History(r.Context(), mux.Vars(r)["id"], page, size)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hp)
}

func (h *Handler) AccountHistory(w http.ResponseWriter, r *http.Request) {
	ops, err := h.svc.AccountHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ops)
}

// customers

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.svc.ListCustomers(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (h *Handler) SearchCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.svc.SearchCustomers(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	c, err := h.svc.GetCustomer(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ListCustomerAccounts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	accounts, err := h.svc.ListCustomerAccounts(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) SaveCustomer(w http.ResponseWriter, r *http.Request) {
	var req models.Customer
	if err := decode(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	c, err := h.svc.SaveCustomer(r.Context(), req)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	var req models.Customer
	if err := decode(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	req.ID = id
	c, err := h.svc.UpdateCustomer(r.Context(), req)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.svc.DeleteCustomer(r.Context(), id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// misc

func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.DashboardStats(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// KeyRate returns the central bank key rate plus the bank margin
func (h *Handler) KeyRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.svc.ReferenceRate(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"key_rate": rate})
}
