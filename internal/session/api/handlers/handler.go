package handlers

import (
	"fmt"
	"strconv"

	errprocess "live_session_service/pkg/err"
	"live_session_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ConnectCheck check api connect start
// @Summary Check coordinator status
// @Description Returns a simple confirmation message
// @Tags Shared
// @Success 200 {string} string "coordinator start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("coordinator start!")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Description Enable or disable debug logging
// @Tags Shared
// @Param status query bool true "Debug status"
// @Success 200 {string} string "debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	statusStr := c.Query("status")
	logger.Log.Info("debug", zap.String("status", statusStr))
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}

// httpStatus rejection code → http status
func httpStatus(code errprocess.Code) int {
	switch code {
	case errprocess.CodeForbidden, errprocess.CodeMuted:
		return fiber.StatusForbidden
	case errprocess.CodeRoomNotFound, errprocess.CodeUnknownAccount,
		errprocess.CodePollNotFound, errprocess.CodeGoalNotFound, errprocess.CodeUnknownGift:
		return fiber.StatusNotFound
	case errprocess.CodeInvalidAmount, errprocess.CodeInvalidMessage,
		errprocess.CodeInvalidCandidateCount, errprocess.CodeInvalidCandidate:
		return fiber.StatusBadRequest
	case errprocess.CodeRateLimited:
		return fiber.StatusTooManyRequests
	case errprocess.CodeInternal, errprocess.CodeRefundFailure:
		return fiber.StatusInternalServerError
	}
	return fiber.StatusConflict
}

// respondError 統一的錯誤回應格式, 與 websocket 的 code / error 相同
func respondError(c *fiber.Ctx, err error) error {
	code := errprocess.CodeOf(err)
	if code == errprocess.CodeInternal {
		logger.Log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(httpStatus(code)).JSON(fiber.Map{
		"code":  code,
		"error": errprocess.Reason(err),
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token"})
}
