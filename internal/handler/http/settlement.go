package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
	"github.com/cmlabs-hris/settlement-backend-go/internal/handler/http/response"
	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
)

const idempotencyKeyHeader = "Idempotency-Key"

type SettlementHandler interface {
	Settle(w http.ResponseWriter, r *http.Request)
	Preview(w http.ResponseWriter, r *http.Request)
	GetBalances(w http.ResponseWriter, r *http.Request)
	ListPaymentRecords(w http.ResponseWriter, r *http.Request)
	ReplayBalances(w http.ResponseWriter, r *http.Request)
	AuditLedgers(w http.ResponseWriter, r *http.Request)
}

type settlementHandlerImpl struct {
	settlementService settlement.SettlementService
}

func NewSettlementHandler(settlementService settlement.SettlementService) SettlementHandler {
	return &settlementHandlerImpl{settlementService: settlementService}
}

// Settle records one payment. The Idempotency-Key header, when present,
// takes precedence over the body field.
func (h *settlementHandlerImpl) Settle(w http.ResponseWriter, r *http.Request) {
	var req settlement.SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	req.StaffID = chi.URLParam(r, "staffID")

	if key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)); key != "" {
		req.IdempotencyKey = key
	}
	if operator, ok := jwt.OperatorFromContext(r.Context()); ok {
		req.RecordedBy = &operator
	}

	result, err := h.settlementService.Settle(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	if result.Replayed {
		response.SuccessWithMessage(w, "Settlement already recorded", result)
		return
	}
	response.Created(w, "Settlement recorded", result)
}

func (h *settlementHandlerImpl) Preview(w http.ResponseWriter, r *http.Request) {
	var req settlement.PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	req.StaffID = chi.URLParam(r, "staffID")

	result, err := h.settlementService.Preview(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *settlementHandlerImpl) GetBalances(w http.ResponseWriter, r *http.Request) {
	result, err := h.settlementService.GetBalances(r.Context(), chi.URLParam(r, "staffID"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *settlementHandlerImpl) ListPaymentRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var filter settlement.PaymentRecordFilter
	if t := query.Get("type"); t != "" {
		st := settlement.SettlementType(t)
		filter.Type = &st
	}
	if p := query.Get("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil {
			response.BadRequest(w, "Invalid page", nil)
			return
		}
		filter.Page = page
	}
	if l := query.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil {
			response.BadRequest(w, "Invalid limit", nil)
			return
		}
		filter.Limit = limit
	}

	result, err := h.settlementService.ListPaymentRecords(r.Context(), chi.URLParam(r, "staffID"), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	totalPages := 0
	if result.Limit > 0 {
		totalPages = int((result.TotalCount + int64(result.Limit) - 1) / int64(result.Limit))
	}
	response.SuccessWithMeta(w, result.Data, &response.Meta{
		Page:       result.Page,
		Limit:      result.Limit,
		TotalItems: result.TotalCount,
		TotalPages: totalPages,
	})
}

func (h *settlementHandlerImpl) ReplayBalances(w http.ResponseWriter, r *http.Request) {
	result, err := h.settlementService.ReplayBalances(r.Context(), chi.URLParam(r, "staffID"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *settlementHandlerImpl) AuditLedgers(w http.ResponseWriter, r *http.Request) {
	result, err := h.settlementService.AuditLedgers(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}
