package controllers

import (
	"net/http"

	"github.com/omaldonado/snapfield-backend/api/middleware"
	"github.com/omaldonado/snapfield-backend/api/responses"
	"github.com/omaldonado/snapfield-backend/api/validators"
	"github.com/omaldonado/snapfield-backend/internal/extraction"
	pkgerrors "github.com/omaldonado/snapfield-backend/pkg/errors"
	"github.com/omaldonado/snapfield-backend/pkg/logger"
)

type extractRequest struct {
	SubjectID string `json:"subject_id"`
	Nickname  string `json:"nickname" validate:"omitempty,max=64"`
	ImageURL  string `json:"image_url" validate:"omitempty,url"`
	ImageData []byte `json:"image_data"`
	Hint      string `json:"hint" validate:"omitempty,max=256"`
}

// Extract handles the metered field-extraction operation.
func Extract(service *extraction.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body extractRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if body.ImageURL == "" && len(body.ImageData) == 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "image_url or image_data required"))
			return
		}

		if body.SubjectID != "" && logg != nil {
			ctx = logg.WithSubjectID(ctx, body.SubjectID)
		}

		result, err := service.Extract(ctx, extraction.Request{
			SubjectID: body.SubjectID,
			Nickname:  body.Nickname,
			Origin:    middleware.ClientIP(r),
			ImageURL:  body.ImageURL,
			ImageData: body.ImageData,
			Hint:      body.Hint,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
