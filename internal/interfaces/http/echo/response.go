package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	app "github.com/mohammadpnp/bulk-import/internal/application/importing"
	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

func respondError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, apiResponse{Error: &errorBody{Code: code, Message: message}})
}

// respondUseCaseError maps use case errors onto HTTP responses. fallback is
// the message for anything unexpected.
func respondUseCaseError(c echo.Context, err error, fallback string) error {
	var (
		headerErr  *domain.HeaderNotFoundError
		missingErr *domain.MissingColumnsError
	)
	switch {
	case errors.Is(err, domain.ErrUnknownTableType):
		return respondError(c, http.StatusBadRequest, "unknown_table_type", err.Error())
	case errors.Is(err, app.ErrInvalidImportRequest):
		return respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrNoData):
		return respondError(c, http.StatusBadRequest, "empty_file", err.Error())
	case errors.Is(err, domain.ErrFileTooLarge):
		return respondError(c, http.StatusRequestEntityTooLarge, "file_too_large", err.Error())
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return respondError(c, http.StatusUnsupportedMediaType, "unsupported_format", "file must be .csv or .xlsx")
	case errors.Is(err, domain.ErrCorruptFile):
		return respondError(c, http.StatusBadRequest, "corrupt_file", err.Error())
	case errors.As(err, &headerErr):
		return respondError(c, http.StatusBadRequest, "header_not_found", err.Error())
	case errors.As(err, &missingErr):
		return respondError(c, http.StatusBadRequest, "missing_columns", err.Error())
	case errors.Is(err, app.ErrInvalidJobID):
		return respondError(c, http.StatusBadRequest, "invalid_job_id", "id must be a valid UUID")
	case errors.Is(err, domain.ErrJobNotFound):
		return respondError(c, http.StatusNotFound, "not_found", "import job not found")
	}
	c.Logger().Errorf("%s: %v", fallback, err)
	return respondError(c, http.StatusInternalServerError, "internal_error", fallback)
}
