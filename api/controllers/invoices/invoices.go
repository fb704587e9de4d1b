package invoices

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/poflow-backend/api/middleware"
	"github.com/angelmondragon/poflow-backend/api/responses"
	"github.com/angelmondragon/poflow-backend/api/validators"
	"github.com/angelmondragon/poflow-backend/internal/invoiceupload"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
	"github.com/angelmondragon/poflow-backend/pkg/logger"
)

const (
	formFileField = "file"
	// multipartOverhead covers boundaries and part headers around the file.
	multipartOverhead = 64 << 10
)

type issueLinkRequest struct {
	TTLHours int `json:"ttl_hours" validate:"omitempty,min=1,max=2160"`
}

// IssueLink mints a supplier upload link for a SENT or RECEIVED order.
func IssueLink(svc invoiceupload.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		poID, err := validators.ParseUUIDParam(r, "poId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body issueLinkRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var ttl time.Duration
		if body.TTLHours > 0 {
			ttl = time.Duration(body.TTLHours) * time.Hour
		}
		link, err := svc.IssueToken(r.Context(), actor, poID, ttl)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, link)
	}
}

// Details shows the supplier a redacted summary of the order behind a token.
func Details(svc invoiceupload.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.ResolveToken(r.Context(), tokenParam(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// Upload consumes a token with a multipart invoice file.
func Upload(svc invoiceupload.Service, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = invoiceupload.DefaultMaxUploadBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := tokenParam(r)
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "upload token required"))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
		file, err := readFormFile(r, maxBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := svc.ConsumeToken(r.Context(), token, file)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

func readFormFile(r *http.Request, maxBytes int64) (invoiceupload.File, error) {
	tooLarge := func(err error) error {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file exceeds upload limit").
			WithDetails(map[string]any{"max_bytes": maxBytes})
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return invoiceupload.File{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "multipart form required")
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return invoiceupload.File{}, pkgerrors.New(pkgerrors.CodeValidation, "file is required").
				WithDetails(map[string]any{"field": formFileField})
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return invoiceupload.File{}, tooLarge(err)
			}
			return invoiceupload.File{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
		}
		if part.FormName() != formFileField {
			_ = part.Close()
			continue
		}

		body, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
		_ = part.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return invoiceupload.File{}, tooLarge(err)
			}
			return invoiceupload.File{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read uploaded file")
		}
		return invoiceupload.File{
			Name:        part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Size:        int64(len(body)),
			Body:        body,
		}, nil
	}
}

func tokenParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
