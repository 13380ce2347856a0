package handlers

import (
	roomdomain "live_session_service/internal/room/domain"
	sessionapp "live_session_service/internal/session/app"
	"live_session_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
)

// RoomHandler room lifecycle over REST, everything live goes through /ws
type RoomHandler struct {
	coord *sessionapp.Coordinator
}

// NewRoomHandler create RoomHandler
func NewRoomHandler(coord *sessionapp.Coordinator) *RoomHandler {
	return &RoomHandler{coord: coord}
}

// StartStream create a room owned by the caller
// @Summary Create a room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param request body roomdomain.StartStreamReq true "room settings"
// @Success 201 {object} roomdomain.Room
// @Failure 400 {object} string "invalid request"
// @Router /rooms [post]
func (h *RoomHandler) StartStream(c *fiber.Ctx) error {
	caller, ok := middlewares.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req roomdomain.StartStreamReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	room, err := h.coord.Rooms.StartStream(c.UserContext(), caller.MemberID, req)
	if err != nil {
		return respondError(c, err)
	}
	// 主播需要錢包才能收禮
	if err := h.coord.Ledger.OpenWallet(c.UserContext(), caller.MemberID); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

// GoLive scheduled room goes live
// @Summary Go live
// @Tags Rooms
// @Param id path string true "room id"
// @Success 200 {object} roomdomain.Room
// @Router /rooms/{id}/live [post]
func (h *RoomHandler) GoLive(c *fiber.Ctx) error {
	caller, ok := middlewares.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	room, err := h.coord.Rooms.GoLive(c.UserContext(), caller.MemberID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(room)
}

// EndStream host ends the room
// @Summary End stream
// @Tags Rooms
// @Param id path string true "room id"
// @Success 204
// @Router /rooms/{id} [delete]
func (h *RoomHandler) EndStream(c *fiber.Ctx) error {
	caller, ok := middlewares.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.coord.EndStream(c.UserContext(), caller.MemberID, c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// LiveRooms rooms currently live
// @Summary Live rooms
// @Tags Rooms
// @Success 200 {array} roomdomain.Room
// @Router /rooms [get]
func (h *RoomHandler) LiveRooms(c *fiber.Ctx) error {
	rooms, err := h.coord.Rooms.LiveRooms(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rooms)
}

// Snapshot authoritative room state for the caller
// @Summary Room snapshot
// @Tags Rooms
// @Param id path string true "room id"
// @Success 200 {object} domain.Snapshot
// @Router /rooms/{id}/snapshot [get]
func (h *RoomHandler) Snapshot(c *fiber.Ctx) error {
	caller, ok := middlewares.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	snap, err := h.coord.Snapshot(c.UserContext(), c.Params("id"), caller.MemberID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(snap)
}

// Pending join requests waiting for the host
// @Summary Pending join requests
// @Tags Rooms
// @Param id path string true "room id"
// @Success 200 {array} roomdomain.ModerationRecord
// @Router /rooms/{id}/pending [get]
func (h *RoomHandler) Pending(c *fiber.Ctx) error {
	caller, ok := middlewares.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	records, err := h.coord.Moderation.Pending(c.UserContext(), caller.MemberID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(records)
}

// GiftCatalog gifts on sale
// @Summary Gift catalog
// @Tags Gifts
// @Success 200 {array} giftdomain.GiftKind
// @Router /gifts [get]
func (h *RoomHandler) GiftCatalog(c *fiber.Ctx) error {
	kinds, err := h.coord.Gifts.Catalog(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(kinds)
}
