package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents network-related errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeParsing represents malformed page content or data blobs
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeNotFound represents an element or page that is absent
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeDisconnected represents a dead browser session or tab
	ErrorTypeDisconnected ErrorType = "disconnected"
	// ErrorTypeCaptcha represents a challenge page that blocked extraction
	ErrorTypeCaptcha ErrorType = "captcha"
	// ErrorTypeSetup represents a city or listing that could not be opened
	ErrorTypeSetup ErrorType = "setup"
	// ErrorTypeStorage represents sink write failures
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeUnexpected represents anything else raised during one merchant
	ErrorTypeUnexpected ErrorType = "unexpected"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// CrawlerError represents an error raised while crawling a URL
type CrawlerError struct {
	Type    ErrorType
	URL     string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *CrawlerError) Error() string {
	target := e.URL
	if target == "" {
		target = "-"
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, target, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, target, e.Message)
}

// Unwrap returns the underlying error
func (e *CrawlerError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the work that produced the error may succeed
// on a fresh browser session.
func (e *CrawlerError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeDisconnected:
		return true
	default:
		return false
	}
}

// New creates a new CrawlerError
func New(errType ErrorType, url, message string, err error) *CrawlerError {
	return &CrawlerError{
		Type:    errType,
		URL:     url,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(url, message string, err error) *CrawlerError {
	return New(ErrorTypeNetwork, url, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(url, message string, err error) *CrawlerError {
	return New(ErrorTypeParsing, url, message, err)
}

// NewNotFound creates a new not-found error
func NewNotFound(url, message string) *CrawlerError {
	return New(ErrorTypeNotFound, url, message, nil)
}

// NewDisconnected creates a new disconnected-session error
func NewDisconnected(url, message string, err error) *CrawlerError {
	return New(ErrorTypeDisconnected, url, message, err)
}

// NewCaptcha creates a new captcha error
func NewCaptcha(url, message string) *CrawlerError {
	return New(ErrorTypeCaptcha, url, message, nil)
}

// NewSetup creates a new setup error
func NewSetup(url, message string, err error) *CrawlerError {
	return New(ErrorTypeSetup, url, message, err)
}

// NewStorage creates a new storage error
func NewStorage(url, message string, err error) *CrawlerError {
	return New(ErrorTypeStorage, url, message, err)
}

// NewUnexpected creates a new unexpected error
func NewUnexpected(url, message string, err error) *CrawlerError {
	return New(ErrorTypeUnexpected, url, message, err)
}

// NewCache creates a new cache error
func NewCache(key, message string, err error) *CrawlerError {
	return New(ErrorTypeCache, key, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(url, message string, err error) *CrawlerError {
	return New(ErrorTypePublisher, url, message, err)
}

// NewValidation creates a new validation error
func NewValidation(url, message string) *CrawlerError {
	return New(ErrorTypeValidation, url, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CrawlerError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// TypeOf returns the type of the first CrawlerError in err's chain, or
// ErrorTypeUnexpected when there is none.
func TypeOf(err error) ErrorType {
	var ce *CrawlerError
	if stderrors.As(err, &ce) {
		return ce.Type
	}
	return ErrorTypeUnexpected
}

// IsType reports whether err wraps a CrawlerError of the given type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}
	var ce *CrawlerError
	for e := err; stderrors.As(e, &ce); e = ce.Err {
		if ce.Type == errType {
			return true
		}
	}
	return false
}

// IsDisconnected reports whether err means the browser session died
func IsDisconnected(err error) bool {
	return IsType(err, ErrorTypeDisconnected)
}

// IsRetryable reports whether err wraps a retryable CrawlerError
func IsRetryable(err error) bool {
	var ce *CrawlerError
	return stderrors.As(err, &ce) && ce.IsRetryable()
}

// URLOf returns the URL recorded on the first CrawlerError in err's chain
func URLOf(err error) string {
	var ce *CrawlerError
	if stderrors.As(err, &ce) {
		return ce.URL
	}
	return ""
}
