package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"courier-dispatch/internal/client/connmanager"
	"courier-dispatch/internal/client/countdown"
	"courier-dispatch/internal/client/poller"
	"courier-dispatch/internal/client/router"
	"courier-dispatch/internal/client/state"
	"courier-dispatch/internal/dispatch/app/core"
	"courier-dispatch/internal/dispatch/domain/models"
	"courier-dispatch/internal/xpkg/config"
	"courier-dispatch/internal/xpkg/logger"
)

// Client composes the push-channel core for one role-identified user:
// connection manager, event router, countdown engine, reconciliation
// poller, and the local state store.
type Client struct {
	identity state.Identity
	api      *API
	conn     *connmanager.Manager
	engine   *countdown.Engine
	router   *router.Router
	poller   *poller.Poller
	store    *state.Store
	ui       router.UISink
	mylog    *logger.Logger
}

func New(cfg config.ClientConfig, identity state.Identity, ui router.UISink, store *state.Store, mylog *logger.Logger) *Client {
	c := &Client{
		identity: identity,
		api:      NewAPI(cfg.APIURL),
		store:    store,
		ui:       ui,
		mylog:    mylog,
	}

	c.engine = countdown.New(countdown.Config{}, c.onCountdownExpired, nil, mylog)

	c.poller = poller.New(poller.Config{
		Interval: cfg.ResyncInterval,
		MinGap:   cfg.ResyncMinGap,
	}, c.resync, mylog)

	c.router = router.New(identity.UserID, c.engine, c.triggerResync, ui, mylog)

	c.conn = connmanager.New(connmanager.Options{
		URL:         cfg.HubURL,
		UserID:      identity.UserID,
		Role:        identity.Role,
		Base:        cfg.ReconnectBase,
		Growth:      cfg.ReconnectGrowth,
		Cap:         cfg.ReconnectCap,
		MaxAttempts: cfg.MaxAttempts,
		Dial:        connmanager.WebsocketDialer,
		Log:         mylog,
	}, connmanager.Callbacks{
		OnOpen: func() {
			// A fresh connection may have missed pushes.
			c.triggerResync("connected")
		},
		OnMessage: c.router.Route,
		OnClose: func() {
			mylog.Action("channel").Info("push channel closed")
		},
		OnError: func(err error) {
			mylog.Action("channel").Error("push channel terminal failure", err)
		},
		OnReconnect: func(attempt int) {
			mylog.Action("channel").Info("reconnecting", zap.Int("attempt", attempt))
		},
	})

	return c
}

// Start connects the push channel and runs the resync loop until the
// context is cancelled.
func (c *Client) Start(ctx context.Context) error {
	if err := c.conn.Connect(); err != nil {
		// The manager keeps retrying with backoff; starting degraded is
		// fine as long as resync still reaches the API.
		c.mylog.Action("start").Error("initial connect failed", err)
	}
	go c.poller.Run(ctx)
	return nil
}

// Claim attempts to take an order. A lost race triggers an immediate
// resync so the stale card disappears.
func (c *Client) Claim(ctx context.Context, orderID int64) (core.ClaimOutcome, error) {
	outcome, err := c.api.Claim(ctx, orderID, c.identity.UserID)
	if err != nil {
		return "", err
	}
	if outcome == core.OutcomeAlreadyTaken {
		c.triggerResync("claim_lost")
	}
	return outcome, nil
}

// SetCompletionTime commits to a delivery window and starts the local
// countdown straight away rather than waiting for the push echo.
func (c *Client) SetCompletionTime(ctx context.Context, orderID int64, minutes int) (models.Order, error) {
	order, err := c.api.SetCompletionTime(ctx, orderID, c.identity.UserID, minutes)
	if err != nil {
		return models.Order{}, err
	}
	if order.ETA != nil {
		c.engine.Start(order.ID, *order.ETA)
	}
	return order, nil
}

// Complete marks an order delivered by explicit user action.
func (c *Client) Complete(ctx context.Context, orderID int64) (models.Order, error) {
	order, err := c.api.Complete(ctx, orderID, c.identity.UserID)
	if err != nil {
		return models.Order{}, err
	}
	c.engine.Cancel(orderID)
	return order, nil
}

// HistoryByCourier fetches the courier's delivery audit trail.
func (c *Client) HistoryByCourier(ctx context.Context, courierID int64) ([]models.DeliveryHistory, error) {
	return c.api.History(ctx, courierID)
}

// Refresh is the manual resync trigger.
func (c *Client) Refresh() {
	c.triggerResync("manual")
}

// SetVisible forwards screen visibility to the poller.
func (c *Client) SetVisible(ctx context.Context, visible bool) {
	c.poller.SetVisible(ctx, visible)
}

// Remaining exposes a running countdown for rendering.
func (c *Client) Remaining(orderID int64) (time.Duration, bool) {
	return c.engine.Remaining(orderID)
}

// Logout tears the session down and wipes local state.
func (c *Client) Logout(ctx context.Context) error {
	c.conn.Close()
	c.engine.Stop()
	return c.store.Clear(ctx)
}

func (c *Client) onCountdownExpired(orderID int64) {
	// Shops and admins watch countdowns too; only the owning courier may
	// report completion, anyone else would just collect a 403.
	if c.identity.Role != core.RoleCourier {
		return
	}

	// Countdown expiry completes the order. The store-level idempotent
	// write makes a duplicate firing from the server sweep harmless.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := c.api.Complete(ctx, orderID, c.identity.UserID); err != nil {
		c.mylog.Action("countdown_complete").Error("expiry completion failed", err,
			zap.Int64("order_id", orderID))
		c.triggerResync("expiry_failed")
	}
}

func (c *Client) triggerResync(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.poller.Trigger(ctx, reason)
}

// resync is the authoritative fetch: it replaces the in-memory unclaimed
// view and refreshes the local cache. A later-arriving resync always wins
// over any stale in-flight claim result.
func (c *Client) resync(ctx context.Context) error {
	orders, err := c.api.Unclaimed(ctx)
	if err != nil {
		return err
	}
	c.ui.ReplaceUnclaimed(orders)

	if c.store != nil {
		if err := c.store.CacheUnclaimed(ctx, orders); err != nil {
			c.mylog.Action("resync").Error("failed to cache snapshot", err)
		}
		if err := c.store.SetLastResync(ctx, time.Now()); err != nil {
			c.mylog.Action("resync").Error("failed to stamp resync", err)
		}
	}
	return nil
}
