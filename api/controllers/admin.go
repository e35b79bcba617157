package controllers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/omaldonado/snapfield-backend/api/responses"
	"github.com/omaldonado/snapfield-backend/api/validators"
	"github.com/omaldonado/snapfield-backend/internal/codes"
	"github.com/omaldonado/snapfield-backend/internal/journal"
	"github.com/omaldonado/snapfield-backend/internal/ledger"
	"github.com/omaldonado/snapfield-backend/pkg/logger"
)

// ListSubjects returns every subject with rollover-corrected weekly usage.
func ListSubjects(ledgerSvc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, ledgerSvc.ListSubjects(r.Context()))
	}
}

type setTierRequest struct {
	Tier string `json:"tier" validate:"required,oneof=normal pro unlimited"`
}

// SetTier sets a subject's entitlement class directly.
func SetTier(ledgerSvc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body setTierRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		subjectID := chi.URLParam(r, "id")
		if err := ledgerSvc.SetTier(ctx, subjectID, ledger.Tier(body.Tier)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"subject_id": subjectID, "tier": body.Tier})
	}
}

type addExtraQuotaRequest struct {
	Amount int `json:"amount" validate:"required,min=1,max=100000"`
}

// AddExtraQuota grants one-time balance to a subject.
func AddExtraQuota(ledgerSvc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body addExtraQuotaRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		subjectID := chi.URLParam(r, "id")
		if err := ledgerSvc.AddExtraQuota(ctx, subjectID, body.Amount); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"subject_id": subjectID, "added": body.Amount})
	}
}

type remarkRequest struct {
	Remark string `json:"remark" validate:"max=256"`
}

// SetSubjectRemark attaches an operator note to a subject.
func SetSubjectRemark(ledgerSvc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body remarkRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		subjectID := chi.URLParam(r, "id")
		if err := ledgerSvc.SetRemark(ctx, subjectID, body.Remark); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"subject_id": subjectID})
	}
}

type updateConfigRequest struct {
	NormalWeeklyLimit int `json:"normal_weekly_limit" validate:"required,min=1,max=100000"`
	ProWeeklyLimit    int `json:"pro_weekly_limit" validate:"required,min=1,max=100000"`
}

// UpdateConfig replaces the global weekly limits.
func UpdateConfig(ledgerSvc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body updateConfigRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cfg := ledger.QuotaConfig{
			NormalWeeklyLimit: body.NormalWeeklyLimit,
			ProWeeklyLimit:    body.ProWeeklyLimit,
		}
		if err := ledgerSvc.UpdateConfig(ctx, cfg); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cfg)
	}
}

// GetConfig returns the effective quota configuration.
func GetConfig(ledgerSvc *ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, ledgerSvc.Config(r.Context()))
	}
}

// ListUsage returns a filtered page of journal events plus aggregates.
func ListUsage(journalSvc *journal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		query := r.URL.Query()
		page, _ := strconv.Atoi(query.Get("page"))
		pageSize, _ := strconv.Atoi(query.Get("page_size"))
		filter := journal.Filter{
			SubjectKey: query.Get("subject_key"),
			Category:   query.Get("category"),
		}
		events, aggregates := journalSvc.QueryPage(ctx, filter, page, pageSize)
		responses.WriteSuccess(w, map[string]any{
			"events":     events,
			"aggregates": aggregates,
		})
	}
}

// PurgeUsage clears the journal and reports the prior count.
func PurgeUsage(journalSvc *journal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := journalSvc.Purge(r.Context())
		responses.WriteSuccess(w, map[string]int{"purged": count})
	}
}

type generateCodesRequest struct {
	Kind   string `json:"kind" validate:"required,oneof=grant pro-upgrade unlimited-upgrade"`
	Amount int    `json:"amount" validate:"omitempty,min=1,max=100000"`
	Count  int    `json:"count" validate:"required,min=1,max=100"`
	Remark string `json:"remark" validate:"max=256"`
}

// GenerateCodes mints redemption codes.
func GenerateCodes(registry *codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body generateCodesRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		minted, err := registry.Generate(ctx, codes.Kind(body.Kind), body.Amount, body.Count, body.Remark)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"codes": minted})
	}
}

// ListCodes returns every unredeemed code.
func ListCodes(registry *codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, registry.List(r.Context()))
	}
}

// DeleteCode removes an unredeemed code.
func DeleteCode(registry *codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		code := chi.URLParam(r, "code")
		if err := registry.Delete(ctx, code); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"deleted": code})
	}
}

// SetCodeRemark updates the operator note on an unredeemed code.
func SetCodeRemark(registry *codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body remarkRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		code := chi.URLParam(r, "code")
		if err := registry.SetRemark(ctx, code, body.Remark); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"code": code})
	}
}
