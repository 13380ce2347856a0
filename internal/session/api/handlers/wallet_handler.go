package handlers

import (
	sessionapp "live_session_service/internal/session/app"
	"live_session_service/pkg/logger"
	"live_session_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WalletHandler wallet read model and admin top up
type WalletHandler struct {
	coord *sessionapp.Coordinator
}

// NewWalletHandler create WalletHandler
func NewWalletHandler(coord *sessionapp.Coordinator) *WalletHandler {
	return &WalletHandler{coord: coord}
}

// Wallet caller's balance and latest entries, the wallet is opened on first visit
// @Summary My wallet
// @Tags Wallet
// @Produce json
// @Param limit query int false "entries to return"
// @Success 200 {object} map[string]interface{}
// @Router /wallet [get]
func (h *WalletHandler) Wallet(c *fiber.Ctx) error {
	caller, ok := middlewares.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	ctx := c.UserContext()
	if err := h.coord.Ledger.OpenWallet(ctx, caller.MemberID); err != nil {
		return respondError(c, err)
	}
	balance, err := h.coord.Ledger.Balance(ctx, caller.MemberID)
	if err != nil {
		return respondError(c, err)
	}
	entries, err := h.coord.Ledger.History(ctx, caller.MemberID, c.QueryInt("limit", 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"owner_id": caller.MemberID,
		"balance":  balance,
		"entries":  entries,
	})
}

// TopUp credit coins bought outside the service, admin only
// @Summary Top up a wallet
// @Tags Wallet
// @Accept json
// @Param owner path string true "wallet owner"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} string "invalid request"
// @Router /wallets/{owner}/topup [post]
func (h *WalletHandler) TopUp(c *fiber.Ctx) error {
	type request struct {
		Amount    int64  `json:"amount"`
		Reference string `json:"reference"`
	}
	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	owner := c.Params("owner")
	ctx := c.UserContext()
	if err := h.coord.Ledger.TopUp(ctx, owner, req.Amount, req.Reference); err != nil {
		return respondError(c, err)
	}
	balance, err := h.coord.Ledger.Balance(ctx, owner)
	if err != nil {
		return respondError(c, err)
	}
	logger.Log.Info("wallet topped up", zap.String("owner_id", owner), zap.Int64("amount", req.Amount), zap.String("reference", req.Reference))
	return c.JSON(fiber.Map{"owner_id": owner, "balance": balance})
}
