package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/vinyl-storefront/internal/identity"
	"github.com/dmehra2102/vinyl-storefront/internal/order/domain"
)

// Stripe events are a few KiB; anything near this is not from Stripe.
const maxWebhookBody = 64 << 10

type OrderService interface {
	CreatePaymentIntent(ctx context.Context, userID, vinylID uuid.UUID) (domain.PaymentIntentResult, error)
	HandleWebhook(ctx context.Context, signature string, payload []byte) error
	GetUserOrders(ctx context.Context, userID uuid.UUID) ([]domain.Order, error)
	GetOrder(ctx context.Context, orderID, userID uuid.UUID) (domain.Order, error)
}

type Handler struct {
	log     *slog.Logger
	service OrderService
	auth    func(http.Handler) http.Handler
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service OrderService, auth func(http.Handler) http.Handler) *Handler {
	return &Handler{
		log:     log,
		service: service,
		auth:    auth,
		tracer:  otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.healthz)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/webhook", h.webhook)

		r.Group(func(r chi.Router) {
			r.Use(h.auth)
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Post("/create-payment-intent", h.createPaymentIntent)
			r.Get("/", h.listOrders)
			r.Get("/{id}", h.getOrder)
		})
	})
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (h *Handler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreatePaymentIntent")
	defer span.End()

	user, ok := identity.UserFromContext(ctx)
	if !ok {
		h.respondError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req createPaymentIntentReq
	if err := render.Bind(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	vinylID := uuid.MustParse(req.VinylID)
	span.SetAttributes(attribute.String("vinyl_id", vinylID.String()))

	res, err := h.service.CreatePaymentIntent(ctx, user.ID, vinylID)
	if err != nil {
		span.RecordError(err)
		h.handleError(w, r, err)
		return
	}

	span.SetAttributes(attribute.String("order_id", res.OrderID.String()))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, paymentIntentResp{
		ClientSecret: res.ClientSecret,
		OrderID:      res.OrderID,
		Amount:       res.Amount,
	})
}

// webhook reads the body untouched; the signature covers the exact bytes Stripe sent.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "HandleWebhook")
	defer span.End()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "Invalid webhook payload")
		return
	}
	if len(payload) == 0 {
		h.respondError(w, r, http.StatusBadRequest, "Raw body is required for webhook verification")
		return
	}

	if err := h.service.HandleWebhook(ctx, r.Header.Get("Stripe-Signature"), payload); err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, domain.ErrSignature):
			h.log.Warn("webhook signature rejected", "err", err)
			h.respondError(w, r, http.StatusBadRequest, "Webhook signature verification failed")
		case errors.Is(err, domain.ErrValidation):
			h.log.Warn("webhook payload rejected", "err", err)
			h.respondError(w, r, http.StatusBadRequest, "Invalid webhook payload")
		default:
			h.log.Error("webhook processing failed", "err", err)
			h.respondError(w, r, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	render.JSON(w, r, map[string]bool{"received": true})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		h.respondError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	orders, err := h.service.GetUserOrders(r.Context(), user.ID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	out := make([]orderResp, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResp(o))
	}
	render.JSON(w, r, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		h.respondError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, domain.ErrOrderNotFound)
		return
	}

	o, err := h.service.GetOrder(r.Context(), orderID, user.ID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, newOrderResp(o))
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var gwErr *domain.GatewayError
	switch {
	case errors.Is(err, domain.ErrItemNotFound):
		h.respondError(w, r, http.StatusNotFound, "Vinyl not found")
	case errors.Is(err, domain.ErrNotFound):
		h.respondError(w, r, http.StatusNotFound, "Order not found")
	case errors.As(err, &gwErr):
		h.respondError(w, r, http.StatusBadRequest, gwErr.Error())
	case errors.Is(err, domain.ErrValidation):
		h.respondError(w, r, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("request failed", "path", r.URL.Path, "err", err)
		h.respondError(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResp{
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
	})
}
