package api

import (
	"encoding/json"
	"net/http"

	"github.com/abdul-hamid-achik/clearframe/internal/apperror"
	"github.com/abdul-hamid-achik/clearframe/internal/audit"
	"github.com/abdul-hamid-achik/clearframe/internal/billing"
)

func accountHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r.Context())
		if !ok {
			apperror.WriteJSON(w, r, apperror.ErrUnauthorized)
			return
		}
		account, err := cfg.Billing.Account(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		counts, err := cfg.Jobs.Repository().CountByStatus(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"account": account,
			"jobs":    counts,
		})
	}
}

func checkoutHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r.Context())
		if !ok {
			apperror.WriteJSON(w, r, apperror.ErrUnauthorized)
			return
		}

		var req billing.CheckoutRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			apperror.WriteJSON(w, r, apperror.Validation("Invalid checkout request"))
			return
		}

		url, err := cfg.Billing.CreateCheckoutSession(r.Context(), userID, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		recordAudit(cfg, r, audit.Entry{
			UserID:       userID,
			Action:       audit.ActionBillingCheckout,
			ResourceType: "account",
			Metadata:     map[string]any{"kind": req.Kind, "packs": req.Packs},
		})
		writeJSON(w, http.StatusOK, map[string]string{"checkout_url": url})
	}
}
