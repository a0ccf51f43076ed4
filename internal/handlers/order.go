package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/medlab/diagnosis-backend/internal/events"
	"github.com/medlab/diagnosis-backend/internal/logging"
	"github.com/medlab/diagnosis-backend/internal/models"
	"github.com/medlab/diagnosis-backend/internal/util"
)

type OrderHandler struct {
	DB       *gorm.DB
	Producer *events.Producer
}

func (h *OrderHandler) publish(c echo.Context, key string, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "order_events", key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}

func validOrderStatus(s string) bool {
	return s == models.OrderPending || s == models.OrderCompleted || s == models.OrderCancelled
}

// CreateOrder creates the order, its test rows and the billing record in
// one transaction. The total is computed from the catalog, never taken
// from the client.
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order_create")

	var req struct {
		PatientID      uuid.UUID   `json:"patient_id"`
		ConsultantID   *uuid.UUID  `json:"consultant_id"`
		TestIDs        []uuid.UUID `json:"test_ids"`
		DiscountAmount float64     `json:"discount_amount"`
		DiscountBy     string      `json:"discount_by"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.PatientID == uuid.Nil || len(req.TestIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id and test_ids are required")
	}
	if req.DiscountAmount < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "discount_amount must not be negative")
	}

	var order models.Order
	err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var patient models.Patient
		if err := tx.Where("id = ?", req.PatientID).First(&patient).Error; err != nil {
			return err
		}

		var tests []models.LabTest
		if err := tx.Where("id IN ?", req.TestIDs).Find(&tests).Error; err != nil {
			return err
		}
		if len(tests) != len(req.TestIDs) {
			return gorm.ErrRecordNotFound
		}

		var total float64
		for _, t := range tests {
			total += t.Cost
		}

		order = models.Order{
			PatientID:    req.PatientID,
			ConsultantID: req.ConsultantID,
			Status:       models.OrderPending,
			TotalAmount:  total,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		for _, t := range tests {
			orderTest := models.OrderTest{
				OrderID: order.ID,
				TestID:  t.ID,
				Status:  models.TestPending,
			}
			if err := tx.Create(&orderTest).Error; err != nil {
				return err
			}
		}

		net := total - req.DiscountAmount
		if net < 0 {
			net = 0
		}
		billing := models.Billing{
			OrderID:        order.ID,
			TotalAmount:    total,
			DiscountAmount: req.DiscountAmount,
			NetAmount:      net,
			DueAmount:      net,
			DiscountBy:     req.DiscountBy,
			PaymentStatus:  models.PaymentUnpaid,
		}
		return tx.Create(&billing).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient or test not found")
		}
		l.Error("create order failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, order.ID.String(), map[string]any{
		"type":       "order_created",
		"order_id":   order.ID,
		"patient_id": order.PatientID,
		"total":      order.TotalAmount,
	})

	var created models.Order
	if err := h.DB.WithContext(ctx).Preload("Tests").Where("id = ?", order.ID).First(&created).Error; err != nil {
		l.Error("load order failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var order models.Order
	if err := h.DB.WithContext(ctx).Preload("Tests").Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		logging.FromContext(ctx).Error("get order failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	q := h.DB.WithContext(ctx).Model(&models.Order{})
	if status := c.QueryParam("status"); status != "" {
		if !validOrderStatus(status) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status filter")
		}
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		logging.FromContext(ctx).Error("list orders failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var orders []models.Order
	if err := q.Preload("Tests").Order("ordered_at DESC").Offset(offset).Limit(limit).Find(&orders).Error; err != nil {
		logging.FromContext(ctx).Error("list orders failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"data": orders,
		"meta": listMeta(page, limit, total, offset),
	})
}

func (h *OrderHandler) UpdateOrderStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order_update_status")

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if !validOrderStatus(req.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	var order models.Order
	if err := h.DB.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		l.Error("update order failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	order.Status = req.Status
	if err := h.DB.WithContext(ctx).Save(&order).Error; err != nil {
		l.Error("update order failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, order.ID.String(), map[string]any{
		"type":     "order_status_changed",
		"order_id": order.ID,
		"status":   order.Status,
	})
	return c.JSON(http.StatusOK, order)
}

// CollectSample stamps the collection time on a pending order test.
func (h *OrderHandler) CollectSample(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var orderTest models.OrderTest
	if err := h.DB.WithContext(ctx).Where("id = ?", id).First(&orderTest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order test not found")
		}
		logging.FromContext(ctx).Error("collect sample failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	now := time.Now()
	orderTest.SampleCollectedAt = &now
	if err := h.DB.WithContext(ctx).Save(&orderTest).Error; err != nil {
		logging.FromContext(ctx).Error("collect sample failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, orderTest)
}

func (h *OrderHandler) DeleteOrder(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Where("id = ?", id).First(&order).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Billing{}, "order_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.OrderTest{}, "order_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&order).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		logging.FromContext(ctx).Error("delete order failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, id.String(), map[string]any{"type": "order_deleted", "order_id": id})
	return c.NoContent(http.StatusNoContent)
}
