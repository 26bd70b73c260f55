package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"pixwithdraw/internal/domain"
	"pixwithdraw/internal/port"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

type pixKeyRequest struct {
	Type string `json:"type" validate:"required"`
	Key  string `json:"key" validate:"required"`
}

type createWithdrawalRequest struct {
	Method      string          `json:"method" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	PixKey      *pixKeyRequest  `json:"pix_key"`
	ScheduleFor *time.Time      `json:"schedule_for"`
	Metadata    domain.Metadata `json:"metadata" validate:"max=50"`
}

func (r createWithdrawalRequest) toDomain(accountID uuid.UUID) domain.WithdrawalRequest {
	req := domain.WithdrawalRequest{
		AccountID:   accountID,
		Method:      domain.Method(strings.ToLower(strings.TrimSpace(r.Method))),
		Amount:      r.Amount,
		ScheduleFor: r.ScheduleFor,
		Metadata:    r.Metadata,
	}
	if r.PixKey != nil {
		req.Key = &domain.KeyDescriptor{
			Type: domain.KeyType(strings.ToLower(strings.TrimSpace(r.PixKey.Type))),
			Key:  r.PixKey.Key,
		}
	}
	return req
}

type WithdrawalHandler struct {
	service   port.WithdrawalService
	validate  *validator.Validate
	authToken string
	logger    *slog.Logger
}

func NewWithdrawalHandler(service port.WithdrawalService, authToken string, logger *slog.Logger) *WithdrawalHandler {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &WithdrawalHandler{
		service:   service,
		validate:  validate,
		authToken: authToken,
		logger:    logger,
	}
}

func (h *WithdrawalHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.requireToken)
		r.Post("/accounts/{accountID}/withdrawals", h.Create)
		r.Get("/withdrawals/{id}", h.Get)
		r.Post("/withdrawals/{id}/cancel", h.Cancel)
	})
	return r
}

func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		writeResult(w, invalidID("account_id"))
		return
	}

	var body createWithdrawalRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		h.logger.Debug("malformed withdrawal request", "error", err)
		writeJSON(w, http.StatusBadRequest, domain.Failed(domain.CodeValidation, "malformed request body"))
		return
	}
	if err := h.validate.Struct(body); err != nil {
		writeResult(w, domain.Failed(domain.CodeValidation, "invalid withdrawal request", violations(err)...))
		return
	}

	writeResult(w, h.service.Execute(r.Context(), body.toDomain(accountID)))
}

func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeResult(w, invalidID("id"))
		return
	}
	writeResult(w, h.service.Get(r.Context(), id))
}

func (h *WithdrawalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeResult(w, invalidID("id"))
		return
	}
	writeResult(w, h.service.Cancel(r.Context(), id))
}

func (h *WithdrawalHandler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.authToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, domain.Result{Message: domain.ErrUnauthorized.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *WithdrawalHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func invalidID(field string) domain.Result {
	return domain.Failed(domain.CodeValidation, "invalid identifier", domain.Violation{
		Field:   field,
		Code:    domain.ViolationInvalidFormat,
		Message: field + " must be a UUID",
	})
}

func violations(err error) []domain.Violation {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []domain.Violation{{Code: domain.ViolationInvalidFormat, Message: err.Error()}}
	}
	out := make([]domain.Violation, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		code := domain.ViolationInvalidFormat
		if fe.Tag() == "required" {
			code = domain.ViolationRequired
		}
		out = append(out, domain.Violation{Field: field, Code: code, Message: field + " failed " + fe.Tag()})
	}
	return out
}

func writeResult(w http.ResponseWriter, res domain.Result) {
	writeJSON(w, res.HTTPStatus(), res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
