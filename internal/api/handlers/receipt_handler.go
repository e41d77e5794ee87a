package handlers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"splitsnap/internal/allocation"
	"splitsnap/internal/dto"
	"splitsnap/internal/extraction"
	"splitsnap/internal/models"
	"splitsnap/internal/money"
	"splitsnap/internal/reconcile"
	"splitsnap/internal/service"
)

const minorUnitExponent = 2

type ReceiptHandler struct {
	receipts *service.ReceiptService
	logger   *zap.Logger
}

func NewReceiptHandler(receipts *service.ReceiptService, logger *zap.Logger) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts, logger: logger}
}

// Upload accepts a multipart receipt image together with the group and
// uploader identifiers and creates a pending draft.
func (h *ReceiptHandler) Upload(c *fiber.Ctx) error {
	groupID, err := uuid.Parse(c.FormValue("group_id"))
	if err != nil {
		return badRequest(c, "valid group_id is required")
	}
	uploadedBy, err := uuid.Parse(c.FormValue("uploaded_by"))
	if err != nil {
		return badRequest(c, "valid uploaded_by is required")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return badRequest(c, "failed to open file")
	}
	defer src.Close()

	image, err := io.ReadAll(src)
	if err != nil {
		return badRequest(c, "failed to read file")
	}
	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	draft, err := h.receipts.Upload(c.Context(), groupID, uploadedBy, image, contentType)
	if err != nil {
		h.logger.Error("upload receipt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to store receipt",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.ToReceiptResponse(draft))
}

// Process runs extraction and reconciliation on a pending draft.
func (h *ReceiptHandler) Process(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid receipt id")
	}

	draft, err := h.receipts.Process(c.Context(), id)
	switch {
	case err == nil:
		return c.JSON(dto.ToReceiptResponse(draft))
	case errors.Is(err, service.ErrReceiptNotProcessable):
		return conflict(c, err)
	case errors.Is(err, extraction.ErrMalformedExtraction) && draft != nil:
		// The draft is failed and returned so the client sees the note.
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ToReceiptResponse(draft))
	case errors.Is(err, service.ErrProviderTimeout), errors.Is(err, service.ErrProviderUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "extraction provider unavailable, try again later",
		})
	default:
		h.logger.Error("process receipt", zap.String("receipt_id", id.String()), zap.Error(err))
		return internalError(c)
	}
}

func (h *ReceiptHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid receipt id")
	}

	draft, err := h.receipts.Get(c.Context(), id)
	if err != nil {
		return notFound(c, "receipt not found")
	}
	return c.JSON(dto.ToReceiptResponse(draft))
}

// Review applies reviewer corrections and assignment changes to a draft.
func (h *ReceiptHandler) Review(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid receipt id")
	}

	var req dto.ReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	draft, err := h.receipts.Get(c.Context(), id)
	if err != nil {
		return notFound(c, "receipt not found")
	}

	patch, err := h.buildPatch(&req, draft.Currency)
	if err != nil {
		return badRequest(c, err.Error())
	}

	reviewed, err := h.receipts.ApplyReview(c.Context(), id, patch)
	switch {
	case err == nil:
		return c.JSON(dto.ToReceiptResponse(reviewed))
	case errors.Is(err, service.ErrReceiptNotReviewable):
		return conflict(c, err)
	default:
		h.logger.Error("apply review", zap.String("receipt_id", id.String()), zap.Error(err))
		return badRequest(c, err.Error())
	}
}

// Finalize commits a draft and triggers the group's settlement recompute.
func (h *ReceiptHandler) Finalize(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid receipt id")
	}

	var req dto.FinalizeRequest
	// An empty body means no explicit confirmation.
	_ = c.BodyParser(&req)

	draft, err := h.receipts.Finalize(c.Context(), id, req.Confirm)
	switch {
	case err == nil:
		return c.JSON(dto.ToReceiptResponse(draft))
	case errors.Is(err, reconcile.ErrConfirmationRequired):
		return conflict(c, err)
	case errors.Is(err, reconcile.ErrInvalidState):
		return conflict(c, err)
	case errors.Is(err, allocation.ErrUnassignedItem),
		errors.Is(err, allocation.ErrZeroWeightAssignment):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		h.logger.Error("finalize receipt", zap.String("receipt_id", id.String()), zap.Error(err))
		return internalError(c)
	}
}

func (h *ReceiptHandler) Shares(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid receipt id")
	}

	shares, err := h.receipts.Shares(c.Context(), id)
	if err != nil {
		h.logger.Error("load shares", zap.String("receipt_id", id.String()), zap.Error(err))
		return internalError(c)
	}

	resp := make([]dto.ShareResponse, 0, len(shares))
	for _, s := range shares {
		resp = append(resp, dto.ToShareResponse(s))
	}
	return c.JSON(resp)
}

// buildPatch converts the wire request into a service patch, parsing every
// decimal amount in the draft's (possibly overridden) currency.
func (h *ReceiptHandler) buildPatch(req *dto.ReviewRequest, currency string) (*service.ReviewPatch, error) {
	if req.Currency != nil {
		currency = *req.Currency
	}

	patch := &service.ReviewPatch{
		Merchant: req.Merchant,
		Currency: req.Currency,
	}

	var err error
	if patch.Subtotal, err = parseOptionalAmount(req.Subtotal, currency); err != nil {
		return nil, err
	}
	if patch.Tax, err = parseOptionalAmount(req.Tax, currency); err != nil {
		return nil, err
	}
	if patch.Tip, err = parseOptionalAmount(req.Tip, currency); err != nil {
		return nil, err
	}
	if patch.Discount, err = parseOptionalAmount(req.Discount, currency); err != nil {
		return nil, err
	}
	if patch.Total, err = parseOptionalAmount(req.Total, currency); err != nil {
		return nil, err
	}

	if req.Items != nil {
		patch.Items = make([]service.ItemPatch, 0, len(req.Items))
		for _, item := range req.Items {
			ip := service.ItemPatch{
				Description: item.Description,
				Quantity:    item.Quantity,
			}
			if item.ID != "" {
				if ip.ID, err = uuid.Parse(item.ID); err != nil {
					return nil, errors.New("invalid item id " + item.ID)
				}
			}
			if ip.UnitPrice, err = money.Parse(item.UnitPrice, currency, minorUnitExponent); err != nil {
				return nil, err
			}
			if ip.Assignments, err = toAssignments(item.Assignments); err != nil {
				return nil, err
			}
			patch.Items = append(patch.Items, ip)
		}
	}

	if req.Assignments != nil {
		patch.Assignments = make(map[uuid.UUID][]models.ItemAssignment, len(req.Assignments))
		for _, ia := range req.Assignments {
			itemID, err := uuid.Parse(ia.ItemID)
			if err != nil {
				return nil, errors.New("invalid item id " + ia.ItemID)
			}
			as, err := toAssignments(ia.Assignments)
			if err != nil {
				return nil, err
			}
			patch.Assignments[itemID] = as
		}
	}

	return patch, nil
}

func toAssignments(reqs []dto.AssignmentRequest) ([]models.ItemAssignment, error) {
	var out []models.ItemAssignment
	for _, a := range reqs {
		pid, err := uuid.Parse(a.ParticipantID)
		if err != nil {
			return nil, errors.New("invalid participant id " + a.ParticipantID)
		}
		out = append(out, models.ItemAssignment{ParticipantID: pid, Weight: a.Weight})
	}
	return out, nil
}

func parseOptionalAmount(s *string, currency string) (*money.Money, error) {
	if s == nil {
		return nil, nil
	}
	m, err := money.Parse(*s, currency, minorUnitExponent)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func notFound(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": msg})
}

func conflict(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
}

func internalError(c *fiber.Ctx) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal server error",
	})
}
