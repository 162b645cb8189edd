package service

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by a service for a caller mistake or a
// disallowed state wraps exactly one class, except ProductNotFoundError.
var (
	ErrValidation = errors.New("validation error")
	ErrState      = errors.New("state error")
	ErrNotFound   = errors.New("not found")
)

// Error carries a stable machine code alongside a message for people.
type Error struct {
	Class   error
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Class }

// Is matches any *Error with the same code, so a detailed copy made by
// withDetail still satisfies errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) withDetail(format string, args ...any) *Error {
	return &Error{
		Class:   e.Class,
		Code:    e.Code,
		Message: e.Message + ": " + fmt.Sprintf(format, args...),
	}
}

func newError(class error, code, message string) *Error {
	return &Error{Class: class, Code: code, Message: message}
}

var (
	ErrTitleRequired       = newError(ErrValidation, "TITLE_REQUIRED", "title is required")
	ErrDeadlineRequired    = newError(ErrValidation, "DEADLINE_REQUIRED", "deadline is required")
	ErrDeadlineNotInFuture = newError(ErrValidation, "DEADLINE_NOT_IN_FUTURE", "deadline must be in the future")
	ErrInvalidWindow       = newError(ErrValidation, "INVALID_WINDOW", "opening time must be before deadline")
	ErrInvalidStatus       = newError(ErrValidation, "INVALID_STATUS", "status must be open or closed")
	ErrEmptySelection      = newError(ErrValidation, "EMPTY_SELECTION", "at least one product must be selected")
	ErrInvalidQuantity     = newError(ErrValidation, "INVALID_QUANTITY", "quantity must be at least 1")
	ErrDuplicateProduct    = newError(ErrValidation, "DUPLICATE_PRODUCT", "product selected more than once")
	ErrInvalidProduct      = newError(ErrValidation, "INVALID_PRODUCT", "invalid product")
	ErrEmptyPatch          = newError(ErrValidation, "EMPTY_PATCH", "nothing to update")

	ErrOrderNotOpen   = newError(ErrState, "ORDER_NOT_OPEN", "group order is not open")
	ErrDeadlinePassed = newError(ErrState, "DEADLINE_PASSED", "group order deadline has passed")
	ErrOrderClosed    = newError(ErrState, "ORDER_CLOSED", "group order is closed")

	ErrGroupOrderNotFound = newError(ErrNotFound, "ORDER_NOT_FOUND", "group order not found")
	ErrUserNotFound       = newError(ErrNotFound, "USER_NOT_FOUND", "user not found")
	ErrCatalogNotFound    = newError(ErrNotFound, "PRODUCT_NOT_FOUND", "product not found")
)

// ProductNotFoundError is raised when a selection references a product id
// that does not resolve. It is both a validation and a not-found error.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found for id %d", e.ProductID)
}

func (e *ProductNotFoundError) Code() string { return "PRODUCT_NOT_FOUND" }

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrValidation || target == ErrNotFound
}

// Code extracts the machine code from err, or "" for unclassified errors.
func Code(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}

	var productErr *ProductNotFoundError
	if errors.As(err, &productErr) {
		return productErr.Code()
	}

	return ""
}
