package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/poflow-backend/api/controllers"
	approvalcontrollers "github.com/angelmondragon/poflow-backend/api/controllers/approvals"
	invoicecontrollers "github.com/angelmondragon/poflow-backend/api/controllers/invoices"
	orgcontrollers "github.com/angelmondragon/poflow-backend/api/controllers/organizations"
	pocontrollers "github.com/angelmondragon/poflow-backend/api/controllers/purchaseorders"
	"github.com/angelmondragon/poflow-backend/api/middleware"
	"github.com/angelmondragon/poflow-backend/internal/approvals"
	"github.com/angelmondragon/poflow-backend/internal/invoiceupload"
	"github.com/angelmondragon/poflow-backend/internal/organizations"
	"github.com/angelmondragon/poflow-backend/internal/purchaseorders"
	"github.com/angelmondragon/poflow-backend/pkg/config"
	"github.com/angelmondragon/poflow-backend/pkg/logger"
	"github.com/angelmondragon/poflow-backend/pkg/metrics"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	readiness map[string]controllers.Pinger,
	userResolver middleware.UserResolver,
	limiter middleware.WindowStore,
	poService purchaseorders.Service,
	approvalService approvals.Service,
	uploadService invoiceupload.Service,
	orgService organizations.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, m),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	publicPolicy := middleware.NewRateLimitPolicy(
		"invoice_upload",
		cfg.InvoiceUpload.RateLimitWindow,
		cfg.InvoiceUpload.RateLimitPerIP,
	).WithTrustedProxies(cfg.App.TrustedProxyPrefixes)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(logg, readiness))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Use(middleware.RateLimit(publicPolicy, limiter, m, logg))
		r.Get("/po-details", invoicecontrollers.Details(uploadService, logg))
		r.Post("/invoice-upload", invoicecontrollers.Upload(uploadService, cfg.InvoiceUpload.MaxUploadBytes(), logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, userResolver, logg))

		r.Route("/approvals", func(r chi.Router) {
			r.Post("/submit", approvalcontrollers.Submit(approvalService, logg))
			r.Get("/pending", approvalcontrollers.Pending(approvalService, logg))
			r.Post("/{approvalId}/approve", approvalcontrollers.Approve(approvalService, logg))
			r.Post("/{approvalId}/deny", approvalcontrollers.Deny(approvalService, logg))
		})

		r.Route("/purchase-orders", func(r chi.Router) {
			r.Get("/", pocontrollers.List(poService, logg))
			r.Post("/", pocontrollers.Create(poService, logg))
			r.Route("/{poId}", func(r chi.Router) {
				r.Get("/", pocontrollers.Get(poService, logg))
				r.Put("/", pocontrollers.Update(poService, logg))
				r.Post("/send", pocontrollers.Send(poService, logg))
				r.Post("/receive", pocontrollers.Receive(poService, logg))
				r.Post("/cancel", pocontrollers.Cancel(poService, logg))
				r.Post("/resubmit", approvalcontrollers.Resubmit(approvalService, logg))
				r.Get("/approval-history", approvalcontrollers.History(approvalService, logg))
				r.Post("/upload-link", invoicecontrollers.IssueLink(uploadService, logg))
			})
		})

		r.Route("/organization", func(r chi.Router) {
			r.Get("/", orgcontrollers.Get(orgService, logg))
			r.Patch("/", orgcontrollers.UpdateSettings(orgService, logg))
			r.Route("/members", func(r chi.Router) {
				r.Get("/", orgcontrollers.ListMembers(orgService, logg))
				r.Post("/", orgcontrollers.InviteMember(orgService, logg))
				r.Patch("/{memberId}", orgcontrollers.ChangeMemberRole(orgService, logg))
				r.Delete("/{memberId}", orgcontrollers.RemoveMember(orgService, logg))
			})
		})
	})

	return r
}
