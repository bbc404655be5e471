package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"courier-dispatch/internal/dispatch/app/core"
	"courier-dispatch/internal/dispatch/app/services"
	"courier-dispatch/internal/dispatch/domain/dto"
	"courier-dispatch/internal/xpkg/logger"
)

type Handler struct {
	svc      *services.DispatchService
	validate *validator.Validate
	mylog    *logger.Logger
}

func NewHandler(svc *services.DispatchService, mylog *logger.Logger) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
		mylog:    mylog,
	}
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(core.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.Error(core.ErrValidation)
		return
	}

	order, err := h.svc.CreateOrder(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) Claim(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(core.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.Error(core.ErrValidation)
		return
	}

	outcome, err := h.svc.Claim(c.Request.Context(), orderID, req.CourierID)
	if err != nil {
		c.Error(err)
		return
	}

	// Contention is an outcome, not an error: 409 tells the client to
	// resync its unclaimed list.
	status := http.StatusOK
	if outcome == core.OutcomeAlreadyTaken {
		status = http.StatusConflict
	}
	c.JSON(status, dto.ClaimResponse{Outcome: string(outcome)})
}

func (h *Handler) SetETA(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.ETARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(core.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.Error(core.ErrValidation)
		return
	}

	order, err := h.svc.SetCompletionTime(c.Request.Context(), orderID, req.CourierID, req.Minutes)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) Complete(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(core.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.Error(core.ErrValidation)
		return
	}

	order, err := h.svc.Complete(c.Request.Context(), orderID, req.CourierID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) Cancel(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.svc.Cancel(c.Request.Context(), orderID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) GetOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.svc.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListUnclaimed is the resync feed for couriers and admins: the
// authoritative snapshot that supersedes anything pushed.
func (h *Handler) ListUnclaimed(c *gin.Context) {
	orders, err := h.svc.ListUnclaimed(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) ListOrders(c *gin.Context) {
	courierID, err := strconv.ParseInt(c.Query("courier_id"), 10, 64)
	if err != nil || courierID <= 0 {
		c.Error(core.ErrValidation)
		return
	}
	orders, err := h.svc.ListByCourier(c.Request.Context(), courierID, c.Query("status"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) CourierHistory(c *gin.Context) {
	courierID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || courierID <= 0 {
		c.Error(core.ErrValidation)
		return
	}
	records, err := h.svc.HistoryByCourier(c.Request.Context(), courierID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.Error(core.ErrValidation)
		return 0, false
	}
	return id, true
}
