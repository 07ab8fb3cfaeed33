package handler

import (
	"net/http"

	"giftbox-rest-api/internal/catalog"
	"giftbox-rest-api/internal/model"
	"giftbox-rest-api/internal/service"
	"giftbox-rest-api/pkg/apierror"
	"giftbox-rest-api/pkg/response"
)

// BoosterHandler handles booster purchase, use and inventory requests.
type BoosterHandler struct {
	purchases *service.PurchaseService
	inventory *service.InventoryService
	catalog   *catalog.Catalog
}

// NewBoosterHandler creates a new booster handler.
func NewBoosterHandler(purchases *service.PurchaseService, inventory *service.InventoryService, c *catalog.Catalog) *BoosterHandler {
	return &BoosterHandler{
		purchases: purchases,
		inventory: inventory,
		catalog:   c,
	}
}

// PurchaseRequest is the body of POST .../boosters/purchase.
type PurchaseRequest struct {
	BoosterKind   model.BoosterKind `json:"boosterKind"`
	Quantity      int64             `json:"quantity"`
	TransactionID string            `json:"transactionId"`
}

// UseRequest is the body of POST .../boosters/use.
type UseRequest struct {
	BoosterKind model.BoosterKind `json:"boosterKind"`
	Quantity    int64             `json:"quantity"`
}

// CatalogItem is one purchasable booster.
type CatalogItem struct {
	Kind  string `json:"boosterKind"`
	Code  int    `json:"code"`
	Title string `json:"title"`
	Price string `json:"price"`
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := response.DecodeJSON(r, dst); err != nil {
		return apierror.BadRequest("invalid request body: " + err.Error())
	}
	return nil
}

// Purchase handles POST /api/v1/players/{fid}/boosters/purchase
func (h *BoosterHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	fid, err := fidParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req PurchaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.purchases.Purchase(r.Context(), model.PurchaseRequest{
		FID:           fid,
		Kind:          req.BoosterKind,
		Quantity:      req.Quantity,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, result)
}

// Use handles POST /api/v1/players/{fid}/boosters/use
func (h *BoosterHandler) Use(w http.ResponseWriter, r *http.Request) {
	fid, err := fidParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req UseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	boosters, err := h.inventory.Use(r.Context(), fid, req.BoosterKind, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"fid":      fid,
		"boosters": boosters,
	})
}

// Inventory handles GET /api/v1/players/{fid}/boosters
func (h *BoosterHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	fid, err := fidParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	inv, err := h.inventory.Inventory(r.Context(), fid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, inv)
}

// Catalog handles GET /api/v1/boosters/catalog
func (h *BoosterHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	items := h.catalog.Items()
	out := make([]CatalogItem, 0, len(items))
	for _, item := range items {
		out = append(out, CatalogItem{
			Kind:  item.Name,
			Code:  item.Code,
			Title: item.Title,
			Price: item.Price.String(),
		})
	}
	response.OK(w, map[string]interface{}{"items": out})
}
