package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"stylegan-api/internal/service"
	"stylegan-api/internal/stylegan"
)

// maxUploadBytes caps projection target uploads.
const maxUploadBytes = 16 << 20

type modelInput struct {
	Img int `json:"img" validate:"gt=0"`
	Res int `json:"res" validate:"gt=0"`
	FID int `json:"fid" validate:"gte=0"`
}

type generateRequest struct {
	Model      modelInput `json:"model"`
	Truncation *float64   `json:"truncation" validate:"omitempty,gte=-2,lte=2"`
	Seed       textField  `json:"seed" validate:"seed"`
}

type styleMixRequest struct {
	Model       modelInput `json:"model"`
	RowImage    textField  `json:"row_image" validate:"seed_or_image"`
	ColumnImage textField  `json:"column_image" validate:"seed_or_image"`
	Styles      string     `json:"styles" validate:"required,style_band"`
	Truncation  *float64   `json:"truncation" validate:"omitempty,gte=-2,lte=2"`
}

type generateResponse struct {
	ResultImage string `json:"result_image"`
	URLPrefix   string `json:"url_prefix"`
}

type styleMixResponse struct {
	ResultImage string `json:"result_image"`
	RowImage    string `json:"row_image"`
	ColImage    string `json:"col_image"`
	URLPrefix   string `json:"url_prefix"`
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			a.error(w, http.StatusUnprocessableEntity, "validation_failed", fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type))
			return false
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		a.error(w, http.StatusUnprocessableEntity, "validation_failed", validationMessage(err))
		return false
	}
	return true
}

func truncationOr1(psi *float64) float64 {
	if psi == nil {
		return 1
	}
	return *psi
}

func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if !a.decode(w, r, &req) {
		return
	}
	seed, err := stylegan.ParseReference(string(req.Seed))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	id, err := a.Studio.Generate(r.Context(), userID, service.GenerateInput{
		Model:      a.Studio.Descriptor(req.Model.Img, req.Model.Res, req.Model.FID),
		Seed:       seed,
		Truncation: truncationOr1(req.Truncation),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, generateResponse{ResultImage: id, URLPrefix: a.ImageBaseURL})
}

func (a *App) StyleMix(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	var req styleMixRequest
	if !a.decode(w, r, &req) {
		return
	}
	row, err := stylegan.ParseReference(string(req.RowImage))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	col, err := stylegan.ParseReference(string(req.ColumnImage))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	band, err := stylegan.ParseBand(req.Styles)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, err := a.Studio.StyleMix(r.Context(), userID, service.StyleMixInput{
		Model:      a.Studio.Descriptor(req.Model.Img, req.Model.Res, req.Model.FID),
		Row:        row,
		Col:        col,
		Band:       band,
		Truncation: truncationOr1(req.Truncation),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, styleMixResponse{
		ResultImage: out.ResultID,
		RowImage:    out.RowID,
		ColImage:    out.ColID,
		URLPrefix:   a.ImageBaseURL,
	})
}

// Project accepts a multipart form with the target image in "image", the
// checkpoint name in "model" and optional "steps" and "seed".
func (a *App) Project(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}
	model, err := a.Studio.ResolveModel(r.FormValue("model"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	steps, err := optionalUint(r.FormValue("steps"), 1<<31-1)
	if err != nil {
		a.error(w, http.StatusUnprocessableEntity, "validation_failed", "steps: "+err.Error())
		return
	}
	var seed *uint32
	if raw := strings.TrimSpace(r.FormValue("seed")); raw != "" {
		n, err := optionalUint(raw, 1<<32-1)
		if err != nil {
			a.error(w, http.StatusUnprocessableEntity, "validation_failed", "seed: "+err.Error())
			return
		}
		v := uint32(n)
		seed = &v
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		a.error(w, http.StatusUnprocessableEntity, "validation_failed", "image file is required")
		return
	}
	defer file.Close()
	target, _, err := image.Decode(file)
	if err != nil {
		a.error(w, http.StatusUnprocessableEntity, "validation_failed", "image: unsupported or corrupt image")
		return
	}

	id, err := a.Studio.Project(r.Context(), userID, service.ProjectInput{
		Model:  model,
		Target: target,
		Steps:  int(steps),
		Seed:   seed,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, generateResponse{ResultImage: id, URLPrefix: a.ImageBaseURL})
}

func optionalUint(raw string, max uint64) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n > max {
		return 0, fmt.Errorf("must be an integer in [0, %d]", max)
	}
	return n, nil
}
