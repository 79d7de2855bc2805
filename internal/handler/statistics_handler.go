package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"counselpay/internal/errors"
	"counselpay/internal/repository"
	"counselpay/internal/service"
)

// StatisticsHandler handles payment statistics endpoints.
type StatisticsHandler struct {
	statsService service.StatisticsService
}

// NewStatisticsHandler creates a new statistics handler.
func NewStatisticsHandler(statsService service.StatisticsService) *StatisticsHandler {
	return &StatisticsHandler{statsService: statsService}
}

// parseRange reads optional from/to query parameters (RFC 3339), defaulting
// to the last 30 days.
func parseRange(c echo.Context) (time.Time, time.Time) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if v := c.QueryParam("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = t
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = t
		}
	}
	return from, to
}

// StatisticsResponse wraps grouped rollup rows.
type StatisticsResponse struct {
	Rows []repository.StatusCount `json:"rows"`
}

// Summary godoc
// @Summary Payment totals grouped by status
// @Tags statistics
// @Produce json
// @Security BearerAuth
// @Param from query string false "Range start (RFC 3339)"
// @Param to query string false "Range end (RFC 3339)"
// @Success 200 {object} StatisticsResponse
// @Router /payments/statistics [get]
func (h *StatisticsHandler) Summary(c echo.Context) error {
	from, to := parseRange(c)
	rows, err := h.statsService.Summary(c.Request().Context(), from, to)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, StatisticsResponse{Rows: rows})
}

// ByMethod godoc
// @Summary Payment totals grouped by method
// @Tags statistics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} StatisticsResponse
// @Router /payments/statistics/method [get]
func (h *StatisticsHandler) ByMethod(c echo.Context) error {
	from, to := parseRange(c)
	rows, err := h.statsService.ByMethod(c.Request().Context(), from, to)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, StatisticsResponse{Rows: rows})
}

// ByProvider godoc
// @Summary Payment totals grouped by provider
// @Tags statistics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} StatisticsResponse
// @Router /payments/statistics/provider [get]
func (h *StatisticsHandler) ByProvider(c echo.Context) error {
	from, to := parseRange(c)
	rows, err := h.statsService.ByProvider(c.Request().Context(), from, to)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, StatisticsResponse{Rows: rows})
}

// ByBranch godoc
// @Summary Payment totals for one branch grouped by status
// @Tags statistics
// @Produce json
// @Security BearerAuth
// @Param branchId path int true "Branch ID"
// @Success 200 {object} StatisticsResponse
// @Router /payments/statistics/branch/{branchId} [get]
func (h *StatisticsHandler) ByBranch(c echo.Context) error {
	branchID, err := strconv.ParseInt(c.Param("branchId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid branch id",
			Code:  "INVALID_REQUEST",
		})
	}
	from, to := parseRange(c)
	rows, err := h.statsService.ByBranch(c.Request().Context(), branchID, from, to)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, StatisticsResponse{Rows: rows})
}

// ByPayer godoc
// @Summary Payment totals for one payer grouped by status
// @Tags statistics
// @Produce json
// @Security BearerAuth
// @Param payerId path int true "Payer ID"
// @Success 200 {object} StatisticsResponse
// @Router /payments/statistics/payer/{payerId} [get]
func (h *StatisticsHandler) ByPayer(c echo.Context) error {
	payerID, err := strconv.ParseInt(c.Param("payerId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid payer id",
			Code:  "INVALID_REQUEST",
		})
	}
	from, to := parseRange(c)
	rows, err := h.statsService.ByPayer(c.Request().Context(), payerID, from, to)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, StatisticsResponse{Rows: rows})
}

// MonthlyStatisticsResponse wraps the per-month rollup of a year.
type MonthlyStatisticsResponse struct {
	Year int                       `json:"year"`
	Rows []repository.MonthlyCount `json:"rows"`
}

// Monthly godoc
// @Summary Approved payment volume per month
// @Tags statistics
// @Produce json
// @Security BearerAuth
// @Param year query int true "Year"
// @Success 200 {object} MonthlyStatisticsResponse
// @Router /payments/statistics/monthly [get]
func (h *StatisticsHandler) Monthly(c echo.Context) error {
	year, err := strconv.Atoi(c.QueryParam("year"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid year",
			Code:  "INVALID_REQUEST",
		})
	}
	rows, err := h.statsService.Monthly(c.Request().Context(), year)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, MonthlyStatisticsResponse{Year: year, Rows: rows})
}
