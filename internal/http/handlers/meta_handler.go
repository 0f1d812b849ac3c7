package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mediation-escrow/backend/internal/fees"
	"github.com/mediation-escrow/backend/internal/http/dto"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/mediation-escrow/backend/internal/services"
	"go.uber.org/zap"
)

// MetaHandler serves reference data and fee previews; no auth required.
type MetaHandler struct {
	svc *services.MediationService
	log *zap.Logger
}

func NewMetaHandler(svc *services.MediationService, log *zap.Logger) *MetaHandler {
	return &MetaHandler{svc: svc, log: log}
}

type MetaSlab struct {
	From    string `json:"from"`
	To      string `json:"to,omitempty"`
	Percent string `json:"percent"`
}

type MetaFees struct {
	BaseCurrency models.Currency   `json:"base_currency"`
	Currencies   []models.Currency `json:"currencies"`
	Slabs        []MetaSlab        `json:"slabs"`
}

func (h *MetaHandler) GetFees(c *fiber.Ctx) error {
	out := MetaFees{
		BaseCurrency: models.BaseCurrency,
		Currencies:   []models.Currency{models.CurrencyTND, models.CurrencyUSD},
	}
	for _, s := range fees.DefaultSlabs {
		slab := MetaSlab{From: s.From.StringFixed(2), Percent: s.Percent.String()}
		if !s.To.IsZero() {
			slab.To = s.To.StringFixed(2)
		}
		out.Slabs = append(out.Slabs, slab)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}

// QuoteFee returns the fee breakdown for a price. An invalid price still answers
// with the result carrying its error field.
func (h *MetaHandler) QuoteFee(c *fiber.Ctx) error {
	var req dto.FeeQuoteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.QuoteFee(req.Price, models.Currency(req.Currency))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.SuccessResponse{OK: false, Data: res})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}
