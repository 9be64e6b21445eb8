package billing

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxWebhookBodySize caps inbound webhook payloads (64 KiB). Processor events
// are small; the limit protects against abuse on an unauthenticated endpoint.
const maxWebhookBodySize = 64 * 1024

// signatureHeader carries the processor's `t=<unix>,v1=<hex>` signature.
const signatureHeader = "Signature"

// Router mounts the billing HTTP surface. The webhook endpoint is
// server-to-server and carries no session auth; its security is the signature
// verification inside the service. The account-facing endpoints are expected
// to sit behind the application's auth middleware when mounted.
func Router(svc *Service, log *slog.Logger) chi.Router {
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Post("/webhooks/billing", handleWebhook(svc, log))
	r.Post("/billing/checkout", handleCheckout(svc))
	r.Post("/billing/portal", handlePortal(svc))
	r.Get("/billing/subscription", handleGetSubscription(svc))
	r.Get("/billing/plans", handleListPlans(svc))
	return r
}

// handleWebhook maps pipeline outcomes onto the delivery contract: 400 for
// payloads the processor must not resend (bad signature, undecodable), 500
// for transient failures it should retry, 200 for everything handled,
// including recognized no-ops and absorbed data problems.
func handleWebhook(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			log.WarnContext(ctx, "failed to read webhook body", "error", err)
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body"})
			return
		}

		err = svc.HandleWebhook(ctx, payload, r.Header.Get(signatureHeader))
		switch {
		case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrDecode):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		default:
			writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		}
	}
}

type checkoutRequest struct {
	AccountID  uuid.UUID `json:"account_id"`
	PlanSlug   string    `json:"plan_slug"`
	SuccessURL string    `json:"success_url"`
	CancelURL  string    `json:"cancel_url"`
}

func handleCheckout(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		if req.AccountID == uuid.Nil || req.PlanSlug == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "account_id and plan_slug are required"})
			return
		}

		session, err := svc.CreateCheckout(r.Context(), req.AccountID, req.PlanSlug, CheckoutOptions{
			SuccessURL: req.SuccessURL,
			CancelURL:  req.CancelURL,
		})
		switch {
		case errors.Is(err, ErrPlanNotFound), errors.Is(err, ErrAccountNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		case errors.Is(err, ErrSubscriptionExists):
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		default:
			writeJSON(w, http.StatusOK, session)
		}
	}
}

type portalRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	ReturnURL string    `json:"return_url"`
}

func handlePortal(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req portalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		if req.AccountID == uuid.Nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "account_id is required"})
			return
		}

		session, err := svc.PortalLink(r.Context(), req.AccountID, req.ReturnURL)
		switch {
		case errors.Is(err, ErrAccountNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		case errors.Is(err, ErrNoExternalCustomer):
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		default:
			writeJSON(w, http.StatusOK, session)
		}
	}
}

func handleGetSubscription(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := uuid.Parse(r.URL.Query().Get("account_id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "valid account_id is required"})
			return
		}

		sub, err := svc.GetSubscription(r.Context(), accountID)
		switch {
		case errors.Is(err, ErrSubscriptionNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		default:
			writeJSON(w, http.StatusOK, sub)
		}
	}
}

func handleListPlans(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Plans())
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
