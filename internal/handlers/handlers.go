package handlers

import (
	"encoding/json"
	"strings"

	"chatrelay/server/internal/apperror"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// ErrorHandler renders every error that escapes a handler in the API envelope.
// Internal causes are logged, never returned.
func ErrorHandler(log logrus.FieldLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := apperror.Status(err)
		if status >= fiber.StatusInternalServerError {
			entry := log.WithError(err).WithFields(logrus.Fields{"method": c.Method(), "path": c.Path()})
			if id, ok := c.Locals("requestid").(string); ok {
				entry = entry.WithField("request_id", id)
			}
			entry.Error("unhandled error")
		}

		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   apperror.PublicMessage(err),
		})
	}
}

func respond(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperror.InvalidInput("Invalid request body")
	}
	return nil
}

// IDList decodes either a JSON array of ids or a string holding one, which is
// how older clients send group members.
type IDList []string

func (l *IDList) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		*l = ids
		return nil
	}

	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return err
	}
	if strings.TrimSpace(encoded) == "" {
		*l = nil
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &ids); err != nil {
		return err
	}
	*l = ids
	return nil
}
