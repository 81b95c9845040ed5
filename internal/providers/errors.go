package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Provider, e.Code, e.Body)
}

func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	e := strings.ToLower(err.Error())
	if strings.Contains(e, "context length") || strings.Contains(e, "too long") || strings.Contains(e, "maximum context") {
		return ErrorContext
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusPaymentRequired:
			return ErrorQuota
		case se.Code == http.StatusTooManyRequests:
			if strings.Contains(e, "quota") {
				return ErrorQuota
			}
			return ErrorRate
		case se.Code >= 500:
			return ErrorTransient
		}
	}
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate"), strings.Contains(e, "429"):
		return ErrorRate
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}
