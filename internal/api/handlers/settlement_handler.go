package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"splitsnap/internal/dto"
	"splitsnap/internal/service"
)

type SettlementHandler struct {
	settlements *service.SettlementService
	logger      *zap.Logger
}

func NewSettlementHandler(settlements *service.SettlementService, logger *zap.Logger) *SettlementHandler {
	return &SettlementHandler{settlements: settlements, logger: logger}
}

// Balances returns the group's current settlement ledger.
func (h *SettlementHandler) Balances(c *fiber.Ctx) error {
	groupID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid group id")
	}

	entries, err := h.settlements.Balances(c.Context(), groupID)
	if err != nil {
		h.logger.Error("load settlements", zap.String("group_id", groupID.String()), zap.Error(err))
		return internalError(c)
	}
	return c.JSON(dto.ToSettlementResponse(groupID.String(), entries))
}

// Recompute rebuilds the group's ledger on demand. Finalization already
// triggers this; the endpoint covers recovery after a failed recompute.
func (h *SettlementHandler) Recompute(c *fiber.Ctx) error {
	groupID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid group id")
	}

	if err := h.settlements.Recompute(c.Context(), groupID); err != nil {
		h.logger.Error("recompute settlements", zap.String("group_id", groupID.String()), zap.Error(err))
		return internalError(c)
	}

	entries, err := h.settlements.Balances(c.Context(), groupID)
	if err != nil {
		return internalError(c)
	}
	return c.JSON(dto.ToSettlementResponse(groupID.String(), entries))
}
