package apperr

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

// ErrorHandler is installed as the Fiber app's ErrorHandler. Operational
// errors are rendered with their code and message; everything else is logged
// with its cause and masked as a generic server error so driver internals
// never reach the client.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := "SERVER_001"
	message := "Internal server error"

	if appErr, ok := As(err); ok {
		status = appErr.Status
		code = appErr.Code
		message = appErr.Message
		if appErr.Err != nil {
			log.Printf("%s %s: %s (%v)", c.Method(), c.Path(), appErr.Message, appErr.Err)
		}
	} else if fiberErr, ok := err.(*fiber.Error); ok {
		status = fiberErr.Code
		message = fiberErr.Message
	} else {
		log.Printf("%s %s: unhandled error: %v", c.Method(), c.Path(), err)
	}

	// No timestamp or detail in the body: failure responses for a given
	// cause must be byte-identical so they leak nothing about which step
	// failed.
	return c.Status(status).JSON(errorResponse{
		Success: false,
		Error: errorBody{
			Message: message,
			Code:    code,
		},
	})
}
