package router

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"courier-dispatch/internal/client/countdown"
	"courier-dispatch/internal/dispatch/app/core"
	"courier-dispatch/internal/dispatch/domain/dto"
	"courier-dispatch/internal/dispatch/domain/models"
	"courier-dispatch/internal/xpkg/logger"
)

// UISink is the boundary to the surrounding UI layer. The router reduces
// every push to calls on this interface plus countdown/resync side effects;
// rendering is not its concern.
type UISink interface {
	AddOrderPreview(order dto.OrderPayload)
	ReplaceUnclaimed(orders []models.Order)
	RemoveUnclaimed(orderID int64)
	OrderAccepted(order dto.OrderPayload, mine bool)
	OrderProcessing(order dto.OrderPayload)
	OrderDelivered(order dto.OrderPayload)
	Notify(message, kind string)
	SessionTerminated(reason string)
}

// Router classifies inbound push payloads and dispatches them. It never
// raises to the caller: undecodable payloads and unknown types are logged
// and dropped, the latter deliberately, for forward compatibility.
type Router struct {
	userID int64
	engine *countdown.Engine
	resync func(reason string)
	ui     UISink
	now    func() time.Time
	mylog  *logger.Logger
}

func New(userID int64, engine *countdown.Engine, resync func(reason string), ui UISink, mylog *logger.Logger) *Router {
	if mylog == nil {
		mylog = logger.Nop()
	}
	return &Router{
		userID: userID,
		engine: engine,
		resync: resync,
		ui:     ui,
		now:    time.Now,
		mylog:  mylog,
	}
}

func (r *Router) Route(raw []byte) {
	ev, err := dto.Decode(raw)
	if err != nil {
		if errors.Is(err, dto.ErrUnknownType) {
			// Intentional forward-compatibility, not an error.
			r.mylog.Action("route").Debug("ignoring unknown message type",
				zap.String("type", ev.Type))
			return
		}
		r.mylog.Action("route").Warn("dropping undecodable payload", zap.Error(err))
		return
	}

	switch ev.Type {
	case dto.TypeIdentified:
		r.mylog.Action("route").Debug("session identified",
			zap.String("session_id", ev.Identified.SessionID))

	case dto.TypeForceLogout:
		r.ui.SessionTerminated(ev.ForceLogout.Reason)

	case dto.TypeNewOrderAvailable:
		// The push payload is a preview, not authority: resync follows.
		r.ui.AddOrderPreview(*ev.Order)
		r.resync("new_order")

	case dto.TypeOrderUpdated:
		r.handleOrderUpdated(*ev.Order)

	case dto.TypeCountdownStarted:
		r.engine.Start(ev.Countdown.OrderRef(), ev.Countdown.ETA)

	case dto.TypeCountdownUpdate:
		r.handleCountdownUpdate(*ev.Countdown)

	case dto.TypeNotification:
		r.ui.Notify(ev.Notification.Message, ev.Notification.Type)
	}
}

func (r *Router) handleOrderUpdated(order dto.OrderPayload) {
	switch order.Status {
	case core.StatusAccepted:
		mine := order.CourierID != nil && *order.CourierID == r.userID
		if !mine {
			// Another courier won the race; the card leaves the
			// unclaimed list.
			r.ui.RemoveUnclaimed(order.ID)
		}
		r.ui.OrderAccepted(order, mine)

	case core.StatusProcessing:
		r.ui.OrderProcessing(order)
		if order.ETA != nil {
			r.engine.Start(order.ID, *order.ETA)
		}
		r.resync("order_processing")

	case core.StatusDelivered:
		r.engine.Cancel(order.ID)
		r.ui.OrderDelivered(order)

	case core.StatusCancelled:
		r.engine.Cancel(order.ID)
		r.ui.RemoveUnclaimed(order.ID)
		r.resync("order_cancelled")
	}
}

func (r *Router) handleCountdownUpdate(cd dto.CountdownPayload) {
	orderID := cd.OrderRef()
	if !cd.ETA.After(r.now()) {
		// A remote observer saw expiry. The engine's single-fire guard
		// keeps this from doubling up with the local tick.
		r.engine.ObserveExpiry(orderID)
		return
	}
	r.engine.Start(orderID, cd.ETA)
}
