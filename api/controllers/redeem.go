package controllers

import (
	"net/http"

	"github.com/omaldonado/snapfield-backend/api/responses"
	"github.com/omaldonado/snapfield-backend/api/validators"
	"github.com/omaldonado/snapfield-backend/internal/codes"
	"github.com/omaldonado/snapfield-backend/pkg/logger"
)

type redeemRequest struct {
	Code      string `json:"code" validate:"required,max=32"`
	SubjectID string `json:"subject_id" validate:"required,max=128"`
	Nickname  string `json:"nickname" validate:"omitempty,max=64"`
}

// Redeem consumes a single-use code for the calling subject.
func Redeem(registry *codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body redeemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithSubjectID(ctx, body.SubjectID)
		}

		effect, err := registry.Redeem(ctx, body.Code, body.SubjectID, body.Nickname)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, effect)
	}
}
