package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/medlab/diagnosis-backend/internal/events"
	"github.com/medlab/diagnosis-backend/internal/logging"
	"github.com/medlab/diagnosis-backend/internal/models"
	"github.com/medlab/diagnosis-backend/internal/service/search"
	"github.com/medlab/diagnosis-backend/internal/util"
)

type PatientHandler struct {
	DB       *gorm.DB
	Producer *events.Producer
	ES       *elasticsearch.Client
	Index    string
}

// index mirrors the row into elasticsearch best effort; the row is the
// source of truth.
func (h *PatientHandler) index(c echo.Context, p *models.Patient) {
	if h.ES == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := search.IndexPatient(ctx, h.ES, h.Index, p); err != nil {
		logging.FromContext(c.Request().Context()).Error("es index error", "error", err)
	}
}

func (h *PatientHandler) unindex(c echo.Context, id string) {
	if h.ES == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := search.DeletePatient(ctx, h.ES, h.Index, id); err != nil {
		logging.FromContext(c.Request().Context()).Error("es delete error", "error", err)
	}
}

func (h *PatientHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "patient_events", c.Param("id"), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}

type patientRequest struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Age           string `json:"age"`
	Gender        string `json:"gender"`
	ContactNumber string `json:"contact_number"`
	Address       string `json:"address"`
}

func (h *PatientHandler) CreatePatient(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "patient_create")

	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.FirstName == "" || req.LastName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "first_name and last_name are required")
	}

	patient := models.Patient{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Age:           req.Age,
		Gender:        req.Gender,
		ContactNumber: req.ContactNumber,
		Address:       req.Address,
	}
	if err := h.DB.WithContext(ctx).Create(&patient).Error; err != nil {
		l.Error("create patient failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.index(c, &patient)
	h.publish(c, map[string]any{"type": "patient_created", "patient_id": patient.ID})

	return c.JSON(http.StatusCreated, patient)
}

func (h *PatientHandler) GetPatient(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var patient models.Patient
	if err := h.DB.WithContext(ctx).Where("id = ?", id).First(&patient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		logging.FromContext(ctx).Error("get patient failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, patient)
}

func (h *PatientHandler) ListPatients(c echo.Context) error {
	ctx := c.Request().Context()

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.WithContext(ctx).Model(&models.Patient{}).Count(&total).Error; err != nil {
		logging.FromContext(ctx).Error("list patients failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var patients []models.Patient
	err := h.DB.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&patients).Error
	if err != nil {
		logging.FromContext(ctx).Error("list patients failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"data": patients,
		"meta": listMeta(page, limit, total, offset),
	})
}

func (h *PatientHandler) UpdatePatient(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "patient_update")

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var patient models.Patient
	if err := h.DB.WithContext(ctx).Where("id = ?", id).First(&patient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		l.Error("update patient failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if req.FirstName != "" {
		patient.FirstName = req.FirstName
	}
	if req.LastName != "" {
		patient.LastName = req.LastName
	}
	if req.Age != "" {
		patient.Age = req.Age
	}
	if req.Gender != "" {
		patient.Gender = req.Gender
	}
	if req.ContactNumber != "" {
		patient.ContactNumber = req.ContactNumber
	}
	if req.Address != "" {
		patient.Address = req.Address
	}

	if err := h.DB.WithContext(ctx).Save(&patient).Error; err != nil {
		l.Error("update patient failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.index(c, &patient)
	h.publish(c, map[string]any{"type": "patient_updated", "patient_id": patient.ID})

	return c.JSON(http.StatusOK, patient)
}

func (h *PatientHandler) DeletePatient(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	result := h.DB.WithContext(ctx).Delete(&models.Patient{}, "id = ?", id)
	if result.Error != nil {
		logging.FromContext(ctx).Error("delete patient failed", "error", result.Error)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if result.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}

	h.unindex(c, id.String())
	h.publish(c, map[string]any{"type": "patient_deleted", "patient_id": id})

	return c.NoContent(http.StatusNoContent)
}
