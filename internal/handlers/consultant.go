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

type ConsultantHandler struct {
	DB *gorm.DB
}

type consultantRequest struct {
	Name                string `json:"name"`
	Specialization      string `json:"specialization"`
	ContactNumber       string `json:"contact_number"`
	HospitalAffiliation string `json:"hospital_affiliation"`
	Address             string `json:"address"`
}

func (h *ConsultantHandler) CreateConsultant(c echo.Context) error {
	ctx := c.Request().Context()

	var req consultantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Name == "" || req.Specialization == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and specialization are required")
	}

	consultant := models.Consultant{
		Name:                req.Name,
		Specialization:      req.Specialization,
		ContactNumber:       req.ContactNumber,
		HospitalAffiliation: req.HospitalAffiliation,
		Address:             req.Address,
	}
	if err := h.DB.WithContext(ctx).Create(&consultant).Error; err != nil {
		logging.FromContext(ctx).Error("create consultant failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusCreated, consultant)
}

func (h *ConsultantHandler) GetConsultant(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var consultant models.Consultant
	if err := h.DB.WithContext(ctx).Where("id = ?", id).First(&consultant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "consultant not found")
		}
		logging.FromContext(ctx).Error("get consultant failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, consultant)
}

func (h *ConsultantHandler) ListConsultants(c echo.Context) error {
	ctx := c.Request().Context()

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.WithContext(ctx).Model(&models.Consultant{}).Count(&total).Error; err != nil {
		logging.FromContext(ctx).Error("list consultants failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var consultants []models.Consultant
	if err := h.DB.WithContext(ctx).Order("name ASC").Offset(offset).Limit(limit).Find(&consultants).Error; err != nil {
		logging.FromContext(ctx).Error("list consultants failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"data": consultants,
		"meta": listMeta(page, limit, total, offset),
	})
}

func (h *ConsultantHandler) UpdateConsultant(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req consultantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var consultant models.Consultant
	if err := h.DB.WithContext(ctx).Where("id = ?", id).First(&consultant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "consultant not found")
		}
		logging.FromContext(ctx).Error("update consultant failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if req.Name != "" {
		consultant.Name = req.Name
	}
	if req.Specialization != "" {
		consultant.Specialization = req.Specialization
	}
	if req.ContactNumber != "" {
		consultant.ContactNumber = req.ContactNumber
	}
	if req.HospitalAffiliation != "" {
		consultant.HospitalAffiliation = req.HospitalAffiliation
	}
	if req.Address != "" {
		consultant.Address = req.Address
	}

	if err := h.DB.WithContext(ctx).Save(&consultant).Error; err != nil {
		logging.FromContext(ctx).Error("update consultant failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, consultant)
}

func (h *ConsultantHandler) DeleteConsultant(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	result := h.DB.WithContext(ctx).Delete(&models.Consultant{}, "id = ?", id)
	if result.Error != nil {
		logging.FromContext(ctx).Error("delete consultant failed", "error", result.Error)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if result.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "consultant not found")
	}
	return c.NoContent(http.StatusNoContent)
}
