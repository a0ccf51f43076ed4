package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/medlab/diagnosis-backend/internal/logging"
	"github.com/medlab/diagnosis-backend/internal/models"
)

type ReportHandler struct {
	DB *gorm.DB
}

// CreateReport files a result for an order test and marks the test
// completed in the same transaction.
func (h *ReportHandler) CreateReport(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "report_create")

	var req struct {
		OrderTestID uuid.UUID       `json:"order_test_id"`
		Result      json.RawMessage `json:"result"`
		Comments    string          `json:"comments"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.OrderTestID == uuid.Nil || len(req.Result) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "order_test_id and result are required")
	}

	report := models.TestReport{
		OrderTestID: req.OrderTestID,
		Result:      string(req.Result),
		Comments:    req.Comments,
	}
	err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orderTest models.OrderTest
		if err := tx.Where("id = ?", req.OrderTestID).First(&orderTest).Error; err != nil {
			return err
		}

		if err := tx.Create(&report).Error; err != nil {
			return err
		}

		orderTest.Status = models.TestCompleted
		return tx.Save(&orderTest).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order test not found")
		}
		l.Error("create report failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusCreated, report)
}

func (h *ReportHandler) GetReport(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var report models.TestReport
	if err := h.DB.WithContext(ctx).Where("id = ?", id).First(&report).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		}
		logging.FromContext(ctx).Error("get report failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, report)
}

// ListOrderReports returns every report filed against an order's tests.
func (h *ReportHandler) ListOrderReports(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var reports []models.TestReport
	err = h.DB.WithContext(ctx).
		Joins("JOIN order_tests ON order_tests.id = test_reports.order_test_id").
		Where("order_tests.order_id = ?", id).
		Order("test_reports.created_at DESC").
		Find(&reports).Error
	if err != nil {
		logging.FromContext(ctx).Error("list reports failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, reports)
}

func (h *ReportHandler) DeleteReport(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	result := h.DB.WithContext(ctx).Delete(&models.TestReport{}, "id = ?", id)
	if result.Error != nil {
		logging.FromContext(ctx).Error("delete report failed", "error", result.Error)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if result.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.NoContent(http.StatusNoContent)
}
