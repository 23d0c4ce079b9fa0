package utils

import "github.com/gofiber/fiber/v2"

// Success wraps data in the standard response envelope.
func Success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// Message reports an operation with no payload beyond a confirmation text.
func Message(c *fiber.Ctx, status int, text string) error {
	return Success(c, status, fiber.Map{"message": text})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

func Paginated(c *fiber.Ctx, data interface{}, p PaginationParams, total int64) error {
	pages := total / int64(p.Limit)
	if total%int64(p.Limit) != 0 {
		pages++
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    data,
		"pagination": fiber.Map{
			"page":       p.Page,
			"limit":      p.Limit,
			"total":      total,
			"totalPages": pages,
		},
	})
}
