package invoiceupload

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/poflow-backend/internal/notifications"
	"github.com/angelmondragon/poflow-backend/internal/users"
	"github.com/angelmondragon/poflow-backend/pkg/config"
	"github.com/angelmondragon/poflow-backend/pkg/db"
	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
	"github.com/angelmondragon/poflow-backend/pkg/logger"
	"github.com/angelmondragon/poflow-backend/pkg/metrics"
	"github.com/angelmondragon/poflow-backend/pkg/permissions"
	"github.com/angelmondragon/poflow-backend/pkg/postcommit"
	"github.com/angelmondragon/poflow-backend/pkg/security"
	"github.com/angelmondragon/poflow-backend/pkg/storage/gcs"
)

const (
	// DefaultTokenTTL applies when neither the caller nor config sets one.
	DefaultTokenTTL       = 7 * 24 * time.Hour
	DefaultMaxUploadBytes = 10 << 20
	maxTokenAttempts      = 3
	uploadPath            = "/invoice-upload"
	deleteObjectTimeout   = 10 * time.Second
)

// ObjectStore persists invoice files.
type ObjectStore interface {
	UploadObject(ctx context.Context, object, contentType string, body []byte) (*gcs.ObjectInfo, error)
	DeleteObject(ctx context.Context, object string) error
	ObjectURL(object string) string
}

type orgLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// Service runs the supplier invoice upload flow.
type Service interface {
	IssueToken(ctx context.Context, actor users.Actor, poID uuid.UUID, ttl time.Duration) (*UploadLink, error)
	ResolveToken(ctx context.Context, token string) (*Summary, error)
	ConsumeToken(ctx context.Context, token string, file File) (*UploadResult, error)
}

// Options configures token lifetime, link shape and upload limits.
type Options struct {
	PublicBaseURL  string
	TokenTTL       time.Duration
	MaxUploadBytes int64
}

// OptionsFromConfig maps application config onto service options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PublicBaseURL:  cfg.App.PublicBaseURL,
		TokenTTL:       cfg.InvoiceUpload.TokenTTL,
		MaxUploadBytes: cfg.InvoiceUpload.MaxUploadBytes(),
	}
}

// Deps groups the collaborators of the upload service.
type Deps struct {
	Repo          Repository
	Organizations orgLookup
	Store         ObjectStore
	Notifier      notifications.Notifier
	Hooks         postcommit.Dispatcher
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
	Options       Options
}

type service struct {
	Deps
	baseURL  *url.URL
	newToken func() (string, error)
	now      func() time.Time
}

// NewService validates deps and builds the upload service.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("invoice upload repository required")
	case deps.Organizations == nil:
		return nil, fmt.Errorf("organization lookup required")
	case deps.Store == nil:
		return nil, fmt.Errorf("object store required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	case deps.Hooks == nil:
		return nil, fmt.Errorf("post-commit dispatcher required")
	}
	base, err := url.Parse(strings.TrimRight(deps.Options.PublicBaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("public base url must be absolute: %q", deps.Options.PublicBaseURL)
	}
	if deps.Options.TokenTTL <= 0 {
		deps.Options.TokenTTL = DefaultTokenTTL
	}
	if deps.Options.MaxUploadBytes <= 0 {
		deps.Options.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &service{
		Deps:     deps,
		baseURL:  base,
		newToken: func() (string, error) { return security.GenerateToken(security.TokenBytes) },
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) IssueToken(ctx context.Context, actor users.Actor, poID uuid.UUID, ttl time.Duration) (*UploadLink, error) {
	if err := actor.Require(permissions.POIssueUploadLink); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.Options.TokenTTL
	}

	po, err := s.Repo.FindPurchaseOrder(ctx, actor.OrganizationID, poID)
	if err != nil {
		return nil, db.LookupError(err, "purchase order not found")
	}
	if err := ensureAcceptsInvoice(po); err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(ttl)
	for attempt := 1; ; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate upload token")
		}
		rows, err := s.Repo.AssignToken(ctx, po.ID, token, map[string]any{
			"invoice_upload_token_expires_at": expiresAt,
			"updated_at":                      s.now(),
		})
		if err != nil {
			if db.IsUniqueViolation(err, "") && attempt < maxTokenAttempts {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store upload token")
		}
		if rows == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "purchase order no longer accepts an invoice")
		}
		return &UploadLink{URL: s.uploadURL(token), ExpiresAt: expiresAt}, nil
	}
}

func (s *service) ResolveToken(ctx context.Context, token string) (*Summary, error) {
	po, err := s.loadLive(ctx, token)
	if err != nil {
		return nil, err
	}
	org, err := s.Organizations.FindByID(ctx, po.OrganizationID)
	if err != nil {
		return nil, db.LookupError(err, "upload link not found")
	}
	return &Summary{
		PONumber:         po.Number,
		SupplierName:     po.SupplierName,
		TotalAmount:      po.TotalAmount.StringFixed(2),
		Currency:         po.Currency,
		ExpiresAt:        *po.InvoiceUploadTokenExpiresAt,
		OrganizationName: org.Name,
	}, nil
}

func (s *service) ConsumeToken(ctx context.Context, token string, file File) (*UploadResult, error) {
	po, err := s.loadLive(ctx, token)
	if err != nil {
		s.Metrics.IncInvoiceUpload(outcomeFor(err))
		return nil, err
	}
	mimeType, err := s.validateFile(file)
	if err != nil {
		s.Metrics.IncInvoiceUpload("rejected")
		return nil, err
	}

	now := s.now()
	name := sanitizeFileName(file.Name)
	if name == "" {
		name = defaultFileName(mimeType)
	}
	object := fmt.Sprintf("%s/%s/%d/%s", po.OrganizationID, po.ID, now.UnixMilli(), name)

	if _, err := s.Store.UploadObject(ctx, object, mimeType, file.Body); err != nil {
		s.Metrics.IncInvoiceUpload("storage_error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store invoice file")
	}

	rows, err := s.Repo.AttachInvoice(ctx, po.ID, token, map[string]any{
		"invoice_url":                     s.Store.ObjectURL(object),
		"invoice_received_at":             now,
		"status":                          enums.PurchaseOrderStatusInvoiced,
		"invoice_upload_token":            nil,
		"invoice_upload_token_expires_at": nil,
		"updated_at":                      now,
	})
	if err != nil || rows == 0 {
		s.discardObject(ctx, object)
		if err != nil {
			s.Metrics.IncInvoiceUpload("storage_error")
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record invoice")
		}
		s.Metrics.IncInvoiceUpload("not_found")
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "upload link not found")
	}

	s.Metrics.IncInvoiceUpload("accepted")
	s.Hooks.Dispatch(ctx, notifications.Hook(s.Notifier, notifications.Event{
		Type:            enums.NotificationInvoiceReceived,
		OrganizationID:  po.OrganizationID,
		RecipientID:     po.CreatedBy,
		PurchaseOrderID: &po.ID,
		Data: map[string]any{
			"po_number":     po.Number,
			"supplier_name": po.SupplierName,
			"file_name":     name,
		},
	}))
	return &UploadResult{PONumber: po.Number, ReceivedAt: now}, nil
}

// loadLive resolves token to an order whose link is unexpired and unused.
func (s *service) loadLive(ctx context.Context, token string) (*models.PurchaseOrder, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token required").
			WithDetails(map[string]string{"token": "required"})
	}
	po, err := s.Repo.FindByToken(ctx, token)
	if err != nil {
		return nil, db.LookupError(err, "upload link not found")
	}
	if po.InvoiceUploadTokenExpiresAt == nil || s.now().After(*po.InvoiceUploadTokenExpiresAt) {
		details := map[string]any{}
		if po.InvoiceUploadTokenExpiresAt != nil {
			details["expired_at"] = po.InvoiceUploadTokenExpiresAt.UTC()
		}
		return nil, pkgerrors.New(pkgerrors.CodeGone, "upload link expired").WithDetails(details)
	}
	if po.InvoiceURL != nil {
		details := map[string]any{}
		if po.InvoiceReceivedAt != nil {
			details["uploaded_at"] = po.InvoiceReceivedAt.UTC()
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "invoice already uploaded").WithDetails(details)
	}
	return po, nil
}

func (s *service) validateFile(file File) (string, error) {
	size := file.Size
	if int64(len(file.Body)) > size {
		size = int64(len(file.Body))
	}
	if size == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "file is empty").
			WithDetails(map[string]string{"file": "required"})
	}
	if size > s.Options.MaxUploadBytes {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "file too large").
			WithDetails(map[string]any{"file": "too large", "max_bytes": s.Options.MaxUploadBytes})
	}
	mimeType, err := detectMimeType(file.ContentType, file.Body)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported file type").
			WithDetails(map[string]string{"file": err.Error()})
	}
	return mimeType, nil
}

func (s *service) discardObject(ctx context.Context, object string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteObjectTimeout)
	defer cancel()
	if err := s.Store.DeleteObject(dctx, object); err != nil && !errors.Is(err, gcs.ErrObjectNotFound) && s.Logger != nil {
		s.Logger.Error(s.Logger.WithResource(ctx, "invoice_object", object), "discard orphaned invoice object", err)
	}
}

func (s *service) uploadURL(token string) string {
	u := *s.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + uploadPath
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}

func ensureAcceptsInvoice(po *models.PurchaseOrder) error {
	if po.InvoiceURL != nil {
		details := map[string]any{}
		if po.InvoiceReceivedAt != nil {
			details["uploaded_at"] = po.InvoiceReceivedAt.UTC()
		}
		return pkgerrors.New(pkgerrors.CodeConflict, "invoice already uploaded").WithDetails(details)
	}
	if !po.Status.AcceptsInvoice() {
		return pkgerrors.New(pkgerrors.CodeConflict, "purchase order must be sent or received before requesting an invoice").
			WithDetails(map[string]any{"status": po.Status})
	}
	return nil
}

func outcomeFor(err error) string {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeGone):
		return "expired"
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		return "duplicate"
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return "not_found"
	default:
		return "rejected"
	}
}

