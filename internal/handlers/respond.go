package handlers

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/logger"
	"go-autoparts-pos/internal/middleware"
	"go-autoparts-pos/internal/returns"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

var fieldNamesOnce sync.Once

// registerJSONFieldNames makes binding errors name fields the way clients
// send them.
func registerJSONFieldNames() {
	fieldNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
	})
}

// respondError writes err as {"error", "code", "fields"} with the status
// its kind maps to.
func respondError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		err = apperr.Validation("invalid request", fieldErrors(verrs)...)
	}

	e := apperr.As(err)
	status := apperr.HTTPStatus(e.Kind)
	if e.Kind == apperr.KindInternal {
		logger.FromGin(c).Error("Request failed", zap.Error(err))
		_ = c.Error(err)
	}

	body := gin.H{"error": e.Message, "code": e.Kind}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	c.AbortWithStatusJSON(status, body)
}

// fieldErrors drops the struct name from each namespace, so a failing
// lines[0].quantity reads exactly like that.
func fieldErrors(verrs validator.ValidationErrors) []apperr.FieldError {
	out := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Namespace()
		if i := strings.IndexByte(name, '.'); i >= 0 {
			name = name[i+1:]
		}
		out = append(out, apperr.Field(name, validationMessage(fe)))
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " long"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must have at least " + fe.Param() + " entries"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// bindJSON binds the body and answers 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			err = apperr.Validation("invalid JSON body: " + err.Error())
		}
		respondError(c, err)
		return false
	}
	return true
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		respondError(c, apperr.Validation("invalid id", apperr.Field(param, "must be a positive integer")))
		return 0, false
	}
	return uint(id), true
}

// actor is the authenticated caller set by AuthMiddleware.
func actor(c *gin.Context) returns.Actor {
	return returns.Actor{
		ID:   c.GetUint(middleware.UserIDKey),
		Role: c.GetString(middleware.RoleKey),
	}
}

// parseDate accepts YYYY-MM-DD or RFC 3339. A bare date used as an upper
// bound covers the whole day.
func parseDate(value, field string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(dateLayout, value, time.Local)
	if err != nil {
		return nil, apperr.Validation("invalid date", apperr.Field(field, "must be YYYY-MM-DD or RFC 3339"))
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// pageResponse is the envelope of every paginated listing.
type pageResponse struct {
	Data     any   `json:"data"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}
