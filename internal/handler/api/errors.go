package api

import (
	"context"
	"errors"

	"CovDash/internal/domain/models"
	xhttp "CovDash/pkg/http"
	xlogger "CovDash/pkg/logger"

	"github.com/labstack/echo/v4"
)

// toAppError maps domain failures onto API errors. Unknown errors become a
// generic 500 and are logged by the caller.
func toAppError(err error) (*xhttp.AppError, bool) {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	var ie *models.UnknownIndustryError
	if errors.As(err, &ie) {
		return xhttp.NotFoundError("ERR_UNKNOWN_INDUSTRY", ie.Error()).
			WithParam("industry", ie.Industry).WithError(err), true
	}
	var te *models.UnknownTickerError
	if errors.As(err, &te) {
		return xhttp.UnprocessableError("ERR_UNKNOWN_TICKER", "industry", te.Error()).
			WithParam("industry", te.Industry).WithParam("ticker", te.Ticker).WithError(err), true
	}
	switch {
	case errors.Is(err, models.ErrNoSnapshot):
		return xhttp.UnavailableError("ERR_NO_SNAPSHOT", "covariance data is not loaded yet").WithError(err), true
	case errors.Is(err, models.ErrEmptyMatrix):
		return xhttp.UnavailableError("ERR_EMPTY_MATRIX", "covariance matrix is empty").WithError(err), true
	case errors.Is(err, models.ErrNonFiniteMatrix):
		return xhttp.UnavailableError("ERR_NON_FINITE_MATRIX", "covariance matrix has non-finite values").WithError(err), true
	case errors.Is(err, models.ErrMalformedCSV):
		return xhttp.UnprocessableError("ERR_MALFORMED_CSV", "", "covariance source is malformed").WithError(err), true
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.UnavailableError("ERR_TIMEOUT", "request timed out").WithError(err), true
	}
	return nil, false
}

func (h *DashboardHandler) fail(c echo.Context, op string, err error) error {
	if appErr, ok := toAppError(err); ok {
		if appErr.Status >= 500 {
			h.logger.Warn(op+" unavailable", xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	h.logger.Error(op+" usecase error", xlogger.Error(err))
	return xhttp.InternalServerErrorResponse(c)
}
