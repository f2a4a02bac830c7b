// Package apperr defines the closed set of operational errors the API is
// allowed to describe to clients. Anything that is not an *Error is treated
// as an internal fault and masked at the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type Kind int

const (
	KindAuthentication Kind = iota
	KindAuthorization
	KindValidation
	KindDuplicate
	KindNotFound
	KindConfiguration
	KindDatabase
	KindFile
)

type Error struct {
	Kind    Kind
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Authentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Code: "AUTH_001", Status: fiber.StatusUnauthorized, Message: message}
}

func Authorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Code: "AUTH_002", Status: fiber.StatusForbidden, Message: message}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: "VAL_001", Status: fiber.StatusBadRequest, Message: message}
}

func Duplicate(resource, fields string) *Error {
	return &Error{
		Kind:    KindDuplicate,
		Code:    "VAL_002",
		Status:  fiber.StatusConflict,
		Message: fmt.Sprintf("%s with %s already exists", resource, fields),
	}
}

func NotFound(resource, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    "DB_001",
		Status:  fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
	}
}

func Configuration(message string) *Error {
	return &Error{Kind: KindConfiguration, Code: "CONFIG_001", Status: fiber.StatusInternalServerError, Message: message}
}

func Database(operation string, err error) *Error {
	return &Error{
		Kind:    KindDatabase,
		Code:    "DB_002",
		Status:  fiber.StatusInternalServerError,
		Message: fmt.Sprintf("database operation failed: %s", operation),
		Err:     err,
	}
}

func File(message string) *Error {
	return &Error{Kind: KindFile, Code: "FILE_001", Status: fiber.StatusBadRequest, Message: message}
}

// As unwraps err into an *Error if one is anywhere in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
