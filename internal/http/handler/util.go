package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"residence/internal/lock"
	"residence/internal/models"
	"residence/internal/repo"
	"residence/internal/schedule"
	"residence/internal/service"
)

var codeStatus = map[service.Code]int{
	service.CodeValidation:   http.StatusBadRequest,
	service.CodeMembership:   http.StatusForbidden,
	service.CodeClosedDay:    http.StatusBadRequest,
	service.CodeOutsideHours: http.StatusBadRequest,
	service.CodeNotFound:     http.StatusNotFound,
	service.CodeForbidden:    http.StatusForbidden,
	service.CodeUnauthorized: http.StatusUnauthorized,
}

// respondError renders service and repository failures. Anything it does
// not recognise is logged and reported as a 500 without detail.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var se *service.Error
	var dbErr *repo.DBError
	switch {
	case errors.As(err, &se):
		status, ok := codeStatus[se.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		body := gin.H{"error": se.Message, "errorCode": se.Code}
		if se.Details != "" {
			body["details"] = se.Details
		}
		c.JSON(status, body)
	case errors.Is(err, lock.ErrTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Facility is busy, try again", "errorCode": "FACILITY_BUSY"})
	case errors.Is(err, repo.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found", "errorCode": "RECORD_NOT_FOUND"})
	case errors.Is(err, repo.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "Duplicate record", "errorCode": "DUPLICATE_RECORD"})
	case errors.Is(err, repo.ErrMissingReference):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Referenced record does not exist", "errorCode": "MISSING_REFERENCE"})
	case errors.As(err, &dbErr):
		log.Error("database error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error", "errorCode": "DATABASE_ERROR", "details": dbErr.Error()})
	default:
		log.Error("unexpected error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "errorCode": "INTERNAL_ERROR"})
	}
}

func badJSON(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON", "details": err.Error(), "errorCode": service.CodeValidation})
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet("user").(*models.User)
}

func queryTime(c *gin.Context, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, service.NewValidationf("Invalid %s %q", key, v)
	}
	return t, nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, service.NewValidationf("Invalid %s %q", key, v)
	}
	return n, nil
}

// RegisterValidators adds the "hhmm" and "weekday" tags to gin's binding
// validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding engine is not validator/v10")
	}
	if err := v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := schedule.ParseClock(fl.Field().String())
		return err == nil
	}); err != nil {
		return err
	}
	return v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		d := fl.Field().Int()
		return d >= 0 && d <= 6
	})
}
