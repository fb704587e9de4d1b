package invoiceupload

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/poflow-backend/internal/notifications"
	"github.com/angelmondragon/poflow-backend/internal/organizations"
	"github.com/angelmondragon/poflow-backend/internal/testdb"
	"github.com/angelmondragon/poflow-backend/internal/users"
	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
	"github.com/angelmondragon/poflow-backend/pkg/postcommit"
	"github.com/angelmondragon/poflow-backend/pkg/storage/gcs"
)

var (
	pdfBody = []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	pngBody = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
)

type stubStore struct {
	mu       sync.Mutex
	uploads  map[string][]byte
	deleted  []string
	failNext error
}

func newStubStore() *stubStore {
	return &stubStore{uploads: map[string][]byte{}}
}

func (s *stubStore) UploadObject(ctx context.Context, object, contentType string, body []byte) (*gcs.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return nil, err
	}
	s.uploads[object] = body
	return &gcs.ObjectInfo{Name: object, ContentType: contentType}, nil
}

func (s *stubStore) DeleteObject(ctx context.Context, object string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, object)
	delete(s.uploads, object)
	return nil
}

func (s *stubStore) ObjectURL(object string) string {
	return "gs://invoices/" + object
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Notify(ctx context.Context, event notifications.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type fixture struct {
	conn     *gorm.DB
	svc      *service
	store    *stubStore
	notifier *recordingNotifier
	org      *models.Organization
	manager  users.Actor
	viewer   users.Actor
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testdb.Open(t)
	f := &fixture{
		conn:     conn,
		store:    newStubStore(),
		notifier: &recordingNotifier{},
		clock:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}

	svc, err := NewService(Deps{
		Repo:          NewRepository(conn),
		Organizations: organizations.NewRepository(conn),
		Store:         f.store,
		Notifier:      f.notifier,
		Hooks:         postcommit.NewRunner(nil, nil, postcommit.Options{Sync: true}),
		Options:       Options{PublicBaseURL: "https://po.example.com/"},
	})
	require.NoError(t, err)
	f.svc = svc.(*service)
	f.svc.now = func() time.Time { return f.clock }

	f.org = testdb.SeedOrganization(t, conn)
	f.manager = users.ActorFromUser(testdb.SeedUser(t, conn, f.org.ID, enums.UserRoleManager))
	f.viewer = users.ActorFromUser(testdb.SeedUser(t, conn, f.org.ID, enums.UserRoleViewer))
	return f
}

func (f *fixture) sentOrder(t *testing.T) *models.PurchaseOrder {
	t.Helper()
	return testdb.SeedPurchaseOrder(t, f.conn, f.org.ID, f.manager.UserID, enums.PurchaseOrderStatusSent)
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.PurchaseOrder {
	t.Helper()
	var po models.PurchaseOrder
	require.NoError(t, f.conn.First(&po, "id = ?", id).Error)
	return &po
}

func tokenFrom(t *testing.T, link *UploadLink) string {
	t.Helper()
	_, token, ok := strings.Cut(link.URL, "token=")
	require.True(t, ok, "link %q has no token", link.URL)
	return token
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), err.Error())
	return typed
}

func TestIssueTokenBuildsLink(t *testing.T) {
	f := newFixture(t)
	po := f.sentOrder(t)

	link, err := f.svc.IssueToken(context.Background(), f.manager, po.ID, 0)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(link.URL, "https://po.example.com/invoice-upload?token="), link.URL)
	token := tokenFrom(t, link)
	assert.Len(t, token, 64)
	assert.True(t, f.clock.Add(DefaultTokenTTL).Equal(link.ExpiresAt))

	stored := f.reload(t, po.ID)
	require.NotNil(t, stored.InvoiceUploadToken)
	assert.Equal(t, token, *stored.InvoiceUploadToken)
}

func TestIssueTokenRetriesCollision(t *testing.T) {
	f := newFixture(t)
	first := f.sentOrder(t)
	second := f.sentOrder(t)

	tokens := []string{strings.Repeat("a", 64), strings.Repeat("a", 64), strings.Repeat("b", 64)}
	f.svc.newToken = func() (string, error) {
		next := tokens[0]
		tokens = tokens[1:]
		return next, nil
	}

	_, err := f.svc.IssueToken(context.Background(), f.manager, first.ID, time.Hour)
	require.NoError(t, err)
	link, err := f.svc.IssueToken(context.Background(), f.manager, second.ID, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("b", 64), tokenFrom(t, link))
}

func TestIssueTokenGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := testdb.SeedPurchaseOrder(t, f.conn, f.org.ID, f.manager.UserID, enums.PurchaseOrderStatusDraft)
	_, err := f.svc.IssueToken(ctx, f.manager, draft.ID, 0)
	requireCode(t, err, pkgerrors.CodeConflict)

	po := f.sentOrder(t)
	_, err = f.svc.IssueToken(ctx, f.viewer, po.ID, 0)
	requireCode(t, err, pkgerrors.CodeForbidden)

	otherOrg := testdb.SeedOrganization(t, f.conn)
	outsider := users.ActorFromUser(testdb.SeedUser(t, f.conn, otherOrg.ID, enums.UserRoleAdmin))
	_, err = f.svc.IssueToken(ctx, outsider, po.ID, 0)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestTokenExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.sentOrder(t)

	link, err := f.svc.IssueToken(ctx, f.manager, po.ID, time.Hour)
	require.NoError(t, err)
	token := tokenFrom(t, link)

	summary, err := f.svc.ResolveToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, po.Number, summary.PONumber)
	assert.Equal(t, "Paper Supplies Ltd", summary.SupplierName)
	assert.Equal(t, "120.00", summary.TotalAmount)
	assert.Equal(t, enums.CurrencyGBP, summary.Currency)
	assert.Equal(t, "Acme Ltd", summary.OrganizationName)

	f.clock = f.clock.Add(2 * time.Hour)
	_, err = f.svc.ResolveToken(ctx, token)
	typed := requireCode(t, err, pkgerrors.CodeGone)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	expiredAt, ok := details["expired_at"].(time.Time)
	require.True(t, ok)
	assert.True(t, link.ExpiresAt.Equal(expiredAt), "expired_at %v", expiredAt)

	_, err = f.svc.ConsumeToken(ctx, token, File{Name: "inv.pdf", ContentType: "application/pdf", Body: pdfBody})
	requireCode(t, err, pkgerrors.CodeGone)
	assert.Nil(t, f.reload(t, po.ID).InvoiceURL)
	assert.Empty(t, f.store.uploads)
}

func TestTokenLiveAtExactExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.sentOrder(t)

	link, err := f.svc.IssueToken(ctx, f.manager, po.ID, time.Hour)
	require.NoError(t, err)
	token := tokenFrom(t, link)

	f.clock = link.ExpiresAt
	_, err = f.svc.ResolveToken(ctx, token)
	require.NoError(t, err)

	f.clock = link.ExpiresAt.Add(time.Millisecond)
	_, err = f.svc.ResolveToken(ctx, token)
	requireCode(t, err, pkgerrors.CodeGone)
}

func TestConsumeTokenIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.sentOrder(t)

	link, err := f.svc.IssueToken(ctx, f.manager, po.ID, 0)
	require.NoError(t, err)
	token := tokenFrom(t, link)

	res, err := f.svc.ConsumeToken(ctx, token, File{Name: "../March invoice.pdf", ContentType: "application/pdf", Body: pdfBody})
	require.NoError(t, err)
	assert.Equal(t, po.Number, res.PONumber)

	expectedObject := fmt.Sprintf("%s/%s/%d/March-invoice.pdf", f.org.ID, po.ID, f.clock.UnixMilli())
	assert.Contains(t, f.store.uploads, expectedObject)

	stored := f.reload(t, po.ID)
	assert.Equal(t, enums.PurchaseOrderStatusInvoiced, stored.Status)
	require.NotNil(t, stored.InvoiceURL)
	assert.Equal(t, "gs://invoices/"+expectedObject, *stored.InvoiceURL)
	assert.Nil(t, stored.InvoiceUploadToken)
	assert.Nil(t, stored.InvoiceUploadTokenExpiresAt)
	require.NotNil(t, stored.InvoiceReceivedAt)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, enums.NotificationInvoiceReceived, f.notifier.events[0].Type)
	assert.Equal(t, f.manager.UserID, f.notifier.events[0].RecipientID)

	_, err = f.svc.ConsumeToken(ctx, token, File{Name: "again.pdf", ContentType: "application/pdf", Body: pdfBody})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestResolveTokenConflictsWhenInvoicePresent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.sentOrder(t)

	link, err := f.svc.IssueToken(ctx, f.manager, po.ID, 0)
	require.NoError(t, err)
	uploadedAt := f.clock.Add(-time.Minute)
	require.NoError(t, f.conn.Model(&models.PurchaseOrder{}).Where("id = ?", po.ID).Updates(map[string]any{
		"invoice_url":         "gs://invoices/manual.pdf",
		"invoice_received_at": uploadedAt,
	}).Error)

	_, err = f.svc.ResolveToken(ctx, tokenFrom(t, link))
	typed := requireCode(t, err, pkgerrors.CodeConflict)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	got, ok := details["uploaded_at"].(time.Time)
	require.True(t, ok)
	assert.True(t, uploadedAt.Equal(got), "uploaded_at %v", got)
}

func TestConsumeTokenValidatesFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.sentOrder(t)
	link, err := f.svc.IssueToken(ctx, f.manager, po.ID, 0)
	require.NoError(t, err)
	token := tokenFrom(t, link)

	cases := map[string]File{
		"empty":         {Name: "a.pdf", ContentType: "application/pdf"},
		"type mismatch": {Name: "a.pdf", ContentType: "application/pdf", Body: pngBody},
		"not allowed":   {Name: "a.txt", ContentType: "text/plain", Body: []byte("hello")},
		"missing type":  {Name: "a.pdf", Body: pdfBody},
		"over size cap": {Name: "a.pdf", ContentType: "application/pdf", Size: DefaultMaxUploadBytes + 1, Body: pdfBody},
	}
	for name, file := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.ConsumeToken(ctx, token, file)
			requireCode(t, err, pkgerrors.CodeValidation)
		})
	}
	assert.Empty(t, f.store.uploads)

	_, err = f.svc.ConsumeToken(ctx, token, File{Name: "scan.png", ContentType: "image/png", Body: pngBody})
	require.NoError(t, err)
}

func TestConsumeTokenStorageFailureLeavesTokenLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.sentOrder(t)
	link, err := f.svc.IssueToken(ctx, f.manager, po.ID, 0)
	require.NoError(t, err)

	f.store.failNext = fmt.Errorf("bucket unavailable")
	_, err = f.svc.ConsumeToken(ctx, tokenFrom(t, link), File{Name: "a.pdf", ContentType: "application/pdf", Body: pdfBody})
	requireCode(t, err, pkgerrors.CodeDependency)
	assert.NotNil(t, f.reload(t, po.ID).InvoiceUploadToken)
}

func TestEmptyTokenIsValidationError(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ResolveToken(context.Background(), "  ")
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"invoice.pdf":           "invoice.pdf",
		"../../etc/passwd":      "passwd",
		`C:\docs\Invoice 1.pdf`: "Invoice-1.pdf",
		"fa<c>ture.pdf":         "fa_c_ture.pdf",
		"   ":                   "",
		"..":                    "",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeFileName(in), in)
	}
}
