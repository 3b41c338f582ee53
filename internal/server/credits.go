package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	paymentdomain "github.com/Heyzerohey/packhey/internal/payment/domain"
)

// Purchasable credit packs. Prices are in minor units.
var creditPacks = map[string]struct {
	Credits int64
	Amount  int64
}{
	"starter":  {Credits: 10, Amount: 1500},
	"standard": {Credits: 50, Amount: 6500},
	"volume":   {Credits: 200, Amount: 22000},
}

func (s *Server) GetCredits(c *gin.Context) {
	balance, err := s.creditSvc.GetBalance(c.Request.Context(), proUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"balance": balance.String()}})
}

type creditCheckoutRequest struct {
	Pack string `json:"pack"`
}

// CreateCreditCheckout opens a hosted checkout for a signature credit pack.
// Credits land on the balance when the payment webhook confirms the charge.
func (s *Server) CreateCreditCheckout(c *gin.Context) {
	var req creditCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pack, ok := creditPacks[strings.ToLower(strings.TrimSpace(req.Pack))]
	if !ok {
		AbortWithError(c, newValidationError("pack", "unknown_pack", "unknown credit pack"))
		return
	}

	userID := proUserID(c)
	baseURL := strings.TrimRight(s.cfg.BaseURL, "/")
	session, err := s.checkout.CreateCheckoutSession(c.Request.Context(), paymentdomain.CheckoutParams{
		PurchaseType: paymentdomain.PurchaseTypeSignaturePack,
		ProUserID:    userID,
		Credits:      pack.Credits,
		Amount:       pack.Amount,
		Currency:     "USD",
		SuccessURL:   baseURL + "/credits?purchase=success",
		CancelURL:    baseURL + "/credits",
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"session_id":   session.ID,
		"checkout_url": session.URL,
	}})
}

// Subscription plans. Prices are in minor units per billing period.
var subscriptionPlans = map[string]int64{
	"pro-monthly": 4900,
	"pro-annual":  49900,
}

type subscriptionCheckoutRequest struct {
	Plan string `json:"plan"`
}

// CreateSubscriptionCheckout opens a hosted checkout for a Pro plan. The
// subscription row is created when the renewal webhook lands, not here.
func (s *Server) CreateSubscriptionCheckout(c *gin.Context) {
	var req subscriptionCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan := strings.ToLower(strings.TrimSpace(req.Plan))
	amount, ok := subscriptionPlans[plan]
	if !ok {
		AbortWithError(c, newValidationError("plan", "unknown_plan", "unknown subscription plan"))
		return
	}

	baseURL := strings.TrimRight(s.cfg.BaseURL, "/")
	session, err := s.checkout.CreateCheckoutSession(c.Request.Context(), paymentdomain.CheckoutParams{
		PurchaseType: paymentdomain.PurchaseTypeSubscription,
		ProUserID:    proUserID(c),
		Amount:       amount,
		Currency:     "USD",
		SuccessURL:   baseURL + "/subscription?purchase=success",
		CancelURL:    baseURL + "/subscription",
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"session_id":   session.ID,
		"checkout_url": session.URL,
	}})
}

func (s *Server) GetSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.GetActive(c.Request.Context(), proUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"plan_name":            sub.PlanName,
		"status":               string(sub.Status),
		"current_period_start": sub.CurrentPeriodStart,
		"current_period_end":   sub.CurrentPeriodEnd,
		"cycle_signatures":     sub.CurrentCycleSignatureCount,
	}})
}
