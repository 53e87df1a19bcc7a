package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/lastmile-backend/api/controllers"
	"github.com/angelmondragon/lastmile-backend/api/middleware"
	"github.com/angelmondragon/lastmile-backend/internal/completion"
	"github.com/angelmondragon/lastmile-backend/internal/deliveryotp"
	"github.com/angelmondragon/lastmile-backend/internal/earnings"
	"github.com/angelmondragon/lastmile-backend/internal/proofs"
	"github.com/angelmondragon/lastmile-backend/internal/settlements"
	"github.com/angelmondragon/lastmile-backend/internal/shipments"
	"github.com/angelmondragon/lastmile-backend/internal/wallet"
	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/redis"
)

// Services bundles the domain services the HTTP layer dispatches to.
type Services struct {
	Shipments   shipments.Service
	OTP         deliveryotp.Service
	Proofs      proofs.Service
	Earnings    earnings.Service
	Settlements settlements.Service
	Wallet      wallet.Service
	Completion  completion.Service
}

// Infra carries the cross-cutting dependencies used by middleware and probes.
type Infra struct {
	Idempotency redis.IdempotencyStore
	Readiness   []controllers.ReadinessCheck
	Metrics     http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, svc Services, infra Infra) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, infra.Readiness...))
	})
	if infra.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", infra.Metrics)
	}

	admin := middleware.RequireRole(logg, enums.UserRoleAdmin)
	seller := middleware.RequireRole(logg, enums.UserRoleSeller)
	agent := middleware.RequireRole(logg, enums.UserRoleAgent)
	shipper := middleware.RequireRole(logg, enums.UserRoleAdmin, enums.UserRoleSeller)
	anyone := middleware.RequireRole(logg, enums.UserRoleAdmin, enums.UserRoleSeller, enums.UserRoleAgent)
	proofMax := cfg.Delivery.ProofMaxBytes

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(infra.Idempotency, logg))

		r.Route("/shipments", func(r chi.Router) {
			r.With(shipper).Post("/", controllers.ShipmentCreate(svc.Shipments, logg))
			r.Route("/{shipmentId}", func(r chi.Router) {
				r.With(anyone).Get("/", controllers.ShipmentGet(svc.Shipments, logg))
				r.With(shipper).Post("/assign", controllers.ShipmentAssign(svc.Shipments, logg))
				r.With(shipper).Post("/dispatch", controllers.ShipmentDispatch(svc.Shipments, logg))
				r.With(agent).Post("/fail", controllers.ShipmentFail(svc.Shipments, logg))
				r.With(agent).Post("/earning", controllers.ShipmentRecordEarning(svc.Earnings, logg))
			})
		})

		r.Route("/agent", func(r chi.Router) {
			r.Use(agent)
			r.Post("/verify-barcode", controllers.AgentVerifyBarcode(svc.Shipments, logg))
			r.Post("/send-otp", controllers.AgentSendOTP(svc.OTP, logg))
			r.Post("/verify-otp", controllers.AgentVerifyOTP(svc.OTP, logg))
			r.Post("/upload-proof", controllers.AgentUploadProof(svc.Proofs, proofMax, logg))
			r.Post("/orders/{orderId}/proof", controllers.AgentUploadOrderProof(svc.Proofs, proofMax, logg))
			r.Post("/location", controllers.AgentUpdateLocation(svc.Shipments, logg))
			r.Get("/shipments", controllers.AgentShipments(svc.Shipments, logg))
			r.Get("/earnings", controllers.AgentEarnings(svc.Earnings, logg))
			r.Get("/earnings/summary", controllers.AgentEarningsSummary(svc.Earnings, logg))
		})

		r.Route("/seller", func(r chi.Router) {
			r.Use(seller)
			r.Post("/proof-requests", controllers.SellerProofRequestCreate(svc.Proofs, logg))
			r.Get("/delivery-proof/{shipmentId}", controllers.SellerProofURL(svc.Proofs, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(admin)
			r.Route("/settlement", func(r chi.Router) {
				r.Get("/payouts", controllers.AdminPayoutList(svc.Settlements, logg))
				r.Post("/payouts/{settlementId}/pay", controllers.AdminPayoutPay(svc.Settlements, logg))
				r.Post("/payouts/{settlementId}/hold", controllers.AdminPayoutHold(svc.Settlements, logg))
				r.Post("/payouts/{settlementId}/release", controllers.AdminPayoutRelease(svc.Settlements, logg))
				r.Post("/earnings/{earningId}/pay", controllers.AdminEarningPay(svc.Settlements, logg))
			})
			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", controllers.AdminWalletGet(svc.Wallet, logg))
				r.Get("/ledger", controllers.AdminWalletLedger(svc.Wallet, logg))
				r.Post("/adjustments", controllers.AdminWalletAdjust(svc.Wallet, logg))
				r.Post("/rebuild", controllers.AdminWalletRebuild(svc.Wallet, logg))
			})
			r.Get("/proof-requests", controllers.AdminProofRequests(svc.Proofs, logg))
			r.Put("/proof-requests/{requestId}", controllers.AdminProofRequestDecide(svc.Proofs, logg))
			r.Post("/delivery-proofs/{shipmentId}/verify", controllers.AdminProofVerify(svc.Proofs, logg))
			r.Post("/completions/{shipmentId}/retry", controllers.AdminCompletionRetry(svc.Completion, logg))
		})
	})

	return r
}
