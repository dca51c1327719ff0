// Package api contains the HTTP handlers and routing for the checkout service.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/korefit/kore-payments/internal/core/domain"
	"github.com/korefit/kore-payments/internal/core/ports"
	"github.com/korefit/kore-payments/internal/core/service"
	platformredis "github.com/korefit/kore-payments/internal/platform/redis"
)

// Handler contains the HTTP handlers for the checkout API.
type Handler struct {
	sessions  *Registry
	backend   ports.BackendClient
	tokenizer ports.CardTokenizer
	bridge    ports.SessionBridge
	log       zerolog.Logger
}

// NewHandler creates the API handler.
func NewHandler(sessions *Registry, backend ports.BackendClient, tokenizer ports.CardTokenizer, bridge ports.SessionBridge, log zerolog.Logger) *Handler {
	return &Handler{
		sessions:  sessions,
		backend:   backend,
		tokenizer: tokenizer,
		bridge:    bridge,
		log:       log.With().Str("component", "api").Logger(),
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// CreateCheckoutRequest is the JSON body for opening a checkout session.
type CreateCheckoutRequest struct {
	PackageID         int    `json:"package_id" binding:"required,gt=0"`
	RegistrationToken string `json:"registration_token"`
}

// CreateCheckoutResponse returns the new session id together with the first
// state snapshot.
type CreateCheckoutResponse struct {
	Success   bool          `json:"success"`
	SessionID string        `json:"session_id"`
	State     service.State `json:"state"`
}

// CreateCheckout handles POST /api/v1/checkout.
// Opens a session, resolves access, and loads the package and gateway config.
func (h *Handler) CreateCheckout(c *gin.Context) {
	var req CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    domain.CodeValidation,
		})
		return
	}

	sess := h.sessions.Create()
	if token := bearerToken(c); token != "" {
		sess.SetBearerToken(token)
	}
	if req.RegistrationToken != "" {
		sess.SetRegistrationToken(req.RegistrationToken, req.PackageID)
	}

	if err := sess.Begin(c.Request.Context(), req.PackageID); err != nil {
		h.sessions.Remove(sess.ID())
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateCheckoutResponse{
		Success:   true,
		SessionID: sess.ID(),
		State:     sess.Snapshot(),
	})
}

// GetState handles GET /api/v1/checkout/:id.
func (h *Handler) GetState(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "state": sess.Snapshot()})
}

// PrepareCheckout handles POST /api/v1/checkout/:id/prepare.
func (h *Handler) PrepareCheckout(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	prep, err := sess.PrepareCheckout(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "preparation": prep})
}

// TokenizeCard handles POST /api/v1/checkout/:id/tokenize.
// Card data passes through to the gateway and is never stored or logged.
func (h *Handler) TokenizeCard(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var fields domain.CardFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    domain.CodeValidation,
		})
		return
	}

	token, err := sess.TokenizeCard(c.Request.Context(), fields)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}

// PurchaseRequest is the JSON body for submitting a purchase. The method field
// selects the variant; only the fields for that method are read.
type PurchaseRequest struct {
	Method   domain.PaymentMethod `json:"method" binding:"required"`
	Token    domain.CardToken     `json:"token"`
	Phone    string               `json:"phone"`
	BankCode string               `json:"bank_code"`
	UserType string               `json:"user_type"`
	LegalID  string               `json:"legal_id"`
	FullName string               `json:"full_name"`
}

func (r PurchaseRequest) payload() (domain.MethodPayload, error) {
	switch r.Method {
	case domain.MethodCard:
		return domain.CardPayload{Token: r.Token}, nil
	case domain.MethodNequi:
		return domain.NequiPayload{Phone: r.Phone}, nil
	case domain.MethodPSE:
		return domain.PSEPayload{
			BankCode: r.BankCode,
			UserType: r.UserType,
			LegalID:  r.LegalID,
			FullName: r.FullName,
			Phone:    r.Phone,
		}, nil
	case domain.MethodBancolombia:
		return domain.BancolombiaPayload{}, nil
	default:
		return nil, domain.NewFlowError(domain.ErrValidation, "unsupported payment method: "+string(r.Method), domain.CodeValidation)
	}
}

// Purchase handles POST /api/v1/checkout/:id/purchase.
// Submits the attempt and returns the created intent right away, so
// redirect-based methods surface their redirect URL before settlement.
// Clients drive settlement through POST /:id/poll.
func (h *Handler) Purchase(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    domain.CodeValidation,
		})
		return
	}

	payload, err := req.payload()
	if err != nil {
		handleServiceError(c, err)
		return
	}

	intent, err := sess.Purchase(c.Request.Context(), payload)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "intent": intent, "state": sess.Snapshot()})
}

// PollRequest optionally narrows the status query to a gateway transaction.
type PollRequest struct {
	TransactionID string `json:"transaction_id"`
}

// Poll handles POST /api/v1/checkout/:id/poll.
// Drives the accepted attempt to settlement. The optional transaction id comes
// from the widget flow, where submission happens outside this service.
func (h *Handler) Poll(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req PollRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Success: false,
				Error:   "Invalid request body: " + err.Error(),
				Code:    domain.CodeValidation,
			})
			return
		}
	}

	intent, err := sess.PollStatus(c.Request.Context(), req.TransactionID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "intent": intent, "state": sess.Snapshot()})
}

// Reset handles POST /api/v1/checkout/:id/reset.
func (h *Handler) Reset(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sess.Reset()
	c.JSON(http.StatusOK, gin.H{"success": true, "state": sess.Snapshot()})
}

// OpenWidget handles GET /api/v1/checkout/:id/widget.
// Returns everything the embedded gateway widget needs to render.
func (h *Handler) OpenWidget(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	widget, err := sess.OpenWidget(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "widget": widget})
}

// WidgetCallback handles POST /api/v1/checkout/:id/widget-callback.
// The widget reports its transaction id here and the session takes over polling.
func (h *Handler) WidgetCallback(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req PollRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TransactionID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "transaction_id is required",
			Code:    domain.CodeValidation,
		})
		return
	}

	intent, err := sess.PollStatus(c.Request.Context(), req.TransactionID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "intent": intent, "state": sess.Snapshot()})
}

// GetPackage handles GET /api/v1/packages/:id.
func (h *Handler) GetPackage(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "package id must be a positive integer",
			Code:    domain.CodeValidation,
		})
		return
	}

	pkg, err := h.backend.GetPackage(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "package": pkg})
}

// GetGatewayConfig handles GET /api/v1/gateway-config.
func (h *Handler) GetGatewayConfig(c *gin.Context) {
	cfg, err := h.backend.GetGatewayConfig(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "gateway": cfg})
}

// GetBanks handles GET /api/v1/banks.
// Returns the financial institutions accepted for PSE transfers.
func (h *Handler) GetBanks(c *gin.Context) {
	banks, err := h.tokenizer.FinancialInstitutions(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "banks": banks})
}

// ConsumeFresh handles GET /api/v1/session/fresh.
// Reports whether the bearer's session was just established by auto-login and
// clears the mark, so clients show the welcome affordance exactly once.
func (h *Handler) ConsumeFresh(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Success: false,
			Error:   "Authorization header required",
			Code:    domain.CodeAccessDenied,
		})
		return
	}

	fresh, err := h.bridge.ConsumeFresh(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, platformredis.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"success": true, "fresh": false})
			return
		}
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "fresh": fresh})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "kore-payments",
	})
}

// session resolves the session id against the registry, writing the not-found
// response itself when the session is unknown. The id comes from the :id path
// parameter, or from the X-Checkout-Session header when the route has none.
func (h *Handler) session(c *gin.Context) (*service.Session, bool) {
	id := c.Param("id")
	if id == "" {
		id = c.GetHeader("X-Checkout-Session")
	}
	sess, ok := h.sessions.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Success: false,
			Error:   "checkout session not found or expired",
			Code:    domain.CodeNotFound,
		})
		return nil, false
	}
	return sess, true
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	var flowErr *domain.FlowError
	if errors.As(err, &flowErr) {
		statusCode := http.StatusInternalServerError

		switch {
		case errors.Is(flowErr.Err, domain.ErrValidation):
			statusCode = http.StatusBadRequest
		case errors.Is(flowErr.Err, domain.ErrAccessDenied):
			statusCode = http.StatusForbidden
		case errors.Is(flowErr.Err, domain.ErrPackageNotFound):
			statusCode = http.StatusNotFound
		case errors.Is(flowErr.Err, domain.ErrAttemptInFlight),
			errors.Is(flowErr.Err, domain.ErrCardTokenReused):
			statusCode = http.StatusConflict
		case errors.Is(flowErr.Err, domain.ErrGatewayRejected),
			errors.Is(flowErr.Err, domain.ErrPollRejected):
			statusCode = http.StatusUnprocessableEntity
		case errors.Is(flowErr.Err, domain.ErrPreparationFailed),
			errors.Is(flowErr.Err, domain.ErrPurchaseFailed):
			statusCode = http.StatusBadGateway
		case errors.Is(flowErr.Err, domain.ErrPollTimeout):
			statusCode = http.StatusGatewayTimeout
		}

		c.JSON(statusCode, ErrorResponse{
			Success: false,
			Error:   flowErr.Message,
			Code:    flowErr.Code,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Success: false,
		Error:   "Internal server error",
		Code:    domain.CodeInternal,
	})
}
