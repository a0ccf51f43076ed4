package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/medlab/diagnosis-backend/internal/logging"
	"github.com/medlab/diagnosis-backend/internal/models"
	"github.com/medlab/diagnosis-backend/internal/util"
)

type LabTestHandler struct {
	DB *gorm.DB
}

type labTestRequest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Cost           *float64 `json:"cost"`
	SampleRequired string   `json:"sample_required"`
}

func (h *LabTestHandler) CreateLabTest(c echo.Context) error {
	ctx := c.Request().Context()

	var req labTestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Name == "" || req.Cost == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "name and cost are required")
	}

	test := models.LabTest{
		Name:           req.Name,
		Description:    req.Description,
		Cost:           *req.Cost,
		SampleRequired: req.SampleRequired,
	}
	if err := h.DB.WithContext(ctx).Create(&test).Error; err != nil {
		logging.FromContext(ctx).Error("create lab test failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusCreated, test)
}

func (h *LabTestHandler) GetLabTest(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var test models.LabTest
	if err := h.DB.WithContext(ctx).Where("id = ?", id).First(&test).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "lab test not found")
		}
		logging.FromContext(ctx).Error("get lab test failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, test)
}

func (h *LabTestHandler) ListLabTests(c echo.Context) error {
	ctx := c.Request().Context()

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.WithContext(ctx).Model(&models.LabTest{}).Count(&total).Error; err != nil {
		logging.FromContext(ctx).Error("list lab tests failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var tests []models.LabTest
	if err := h.DB.WithContext(ctx).Order("name ASC").Offset(offset).Limit(limit).Find(&tests).Error; err != nil {
		logging.FromContext(ctx).Error("list lab tests failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"data": tests,
		"meta": listMeta(page, limit, total, offset),
	})
}

func (h *LabTestHandler) UpdateLabTest(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req labTestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var test models.LabTest
	if err := h.DB.WithContext(ctx).Where("id = ?", id).First(&test).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "lab test not found")
		}
		logging.FromContext(ctx).Error("update lab test failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if req.Name != "" {
		test.Name = req.Name
	}
	if req.Description != "" {
		test.Description = req.Description
	}
	if req.Cost != nil {
		test.Cost = *req.Cost
	}
	if req.SampleRequired != "" {
		test.SampleRequired = req.SampleRequired
	}

	if err := h.DB.WithContext(ctx).Save(&test).Error; err != nil {
		logging.FromContext(ctx).Error("update lab test failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, test)
}

func (h *LabTestHandler) DeleteLabTest(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	result := h.DB.WithContext(ctx).Delete(&models.LabTest{}, "id = ?", id)
	if result.Error != nil {
		logging.FromContext(ctx).Error("delete lab test failed", "error", result.Error)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if result.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "lab test not found")
	}
	return c.NoContent(http.StatusNoContent)
}
