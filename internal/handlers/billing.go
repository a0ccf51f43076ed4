package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/medlab/diagnosis-backend/internal/logging"
	"github.com/medlab/diagnosis-backend/internal/models"
)

type BillingHandler struct {
	DB *gorm.DB
}

func validPaymentMethod(m string) bool {
	return m == "CASH" || m == "CARD" || m == "UPI"
}

// GetOrderBilling looks up the bill by its order, which is how the front
// desk reaches it.
func (h *BillingHandler) GetOrderBilling(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var billing models.Billing
	if err := h.DB.WithContext(ctx).Where("order_id = ?", id).First(&billing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "billing not found")
		}
		logging.FromContext(ctx).Error("get billing failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, billing)
}

// RecordPayment applies a payment to a bill and rolls the payment status
// forward. Runs in one transaction so the amounts never drift.
func (h *BillingHandler) RecordPayment(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "billing_pay")

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req struct {
		Amount float64 `json:"amount"`
		Method string  `json:"method"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Amount <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be positive")
	}
	if !validPaymentMethod(req.Method) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payment method")
	}

	var billing models.Billing
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&billing).Error; err != nil {
			return err
		}
		if req.Amount > billing.DueAmount {
			return errOverpayment
		}

		billing.PaidAmount += req.Amount
		billing.DueAmount = billing.NetAmount - billing.PaidAmount
		billing.PaymentMethod = req.Method
		if billing.DueAmount <= 0 {
			billing.PaymentStatus = models.PaymentPaid
			now := time.Now()
			billing.PaidAt = &now
		} else {
			billing.PaymentStatus = models.PaymentPartial
		}
		return tx.Save(&billing).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "billing not found")
		}
		if errors.Is(err, errOverpayment) {
			return echo.NewHTTPError(http.StatusBadRequest, "amount exceeds due amount")
		}
		l.Error("record payment failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, billing)
}

var errOverpayment = errors.New("payment exceeds due amount")
