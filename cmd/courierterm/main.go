package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"courier-dispatch/internal/client"
	"courier-dispatch/internal/client/countdown"
	"courier-dispatch/internal/client/state"
	"courier-dispatch/internal/dispatch/domain/dto"
	"courier-dispatch/internal/dispatch/domain/models"
	"courier-dispatch/internal/xpkg/config"
	"courier-dispatch/internal/xpkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	userID := flag.Int64("user", 0, "user id to identify as")
	role := flag.String("role", "courier", "role to identify as (admin, courier, shop)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	mylog, err := logger.New("courier-term", cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer mylog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := state.New(cfg.Redis, fmt.Sprintf("%s-%d", *role, *userID))
	if err != nil {
		mylog.Action("state_connect").Error("failed to connect to local state store", err)
		return
	}
	defer store.Close()

	identity, err := resolveIdentity(ctx, store, *userID, *role)
	if err != nil {
		mylog.Action("identify").Error("failed to resolve identity", err)
		return
	}

	ui := &consoleSink{out: os.Stdout}
	c := client.New(cfg.Client, identity, ui, store, mylog)
	if err := c.Start(ctx); err != nil {
		mylog.Action("start").Error("failed to start client", err)
		return
	}

	fmt.Printf("connected as %s #%d, type 'help' for commands\n", identity.Role, identity.UserID)
	runPrompt(ctx, c, identity)

	logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Logout(logoutCtx); err != nil {
		mylog.Action("logout").Error("logout cleanup failed", err)
	}
}

// resolveIdentity prefers the explicit flags and falls back to whatever the
// local store remembers from the last session.
func resolveIdentity(ctx context.Context, store *state.Store, userID int64, role string) (state.Identity, error) {
	if userID != 0 {
		id := state.Identity{UserID: userID, Role: role}
		if err := store.SaveIdentity(ctx, id); err != nil {
			return state.Identity{}, err
		}
		return id, nil
	}

	id, ok, err := store.LoadIdentity(ctx)
	if err != nil {
		return state.Identity{}, err
	}
	if !ok {
		return state.Identity{}, fmt.Errorf("no stored identity, pass -user and -role")
	}
	return id, nil
}

func runPrompt(ctx context.Context, c *client.Client, identity state.Identity) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleCommand(ctx, c, identity, line); quit {
				return
			}
		}
	}
}

func handleCommand(ctx context.Context, c *client.Client, identity state.Identity, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "help":
		fmt.Println("commands: orders, claim <id>, eta <id> <minutes>, done <id>, refresh, history, hide, show, quit")

	case "orders", "refresh":
		c.Refresh()

	case "claim":
		id, ok := argID(fields, 1)
		if !ok {
			fmt.Println("usage: claim <order-id>")
			return false
		}
		outcome, err := c.Claim(ctx, id)
		if err != nil {
			fmt.Println("claim failed:", err)
			return false
		}
		fmt.Printf("order %d: %s\n", id, outcome)

	case "eta":
		id, ok := argID(fields, 1)
		if !ok || len(fields) < 3 {
			fmt.Println("usage: eta <order-id> <minutes>")
			return false
		}
		minutes, err := strconv.Atoi(fields[2])
		if err != nil {
			fmt.Println("usage: eta <order-id> <minutes>")
			return false
		}
		order, err := c.SetCompletionTime(ctx, id, minutes)
		if err != nil {
			fmt.Println("eta failed:", err)
			return false
		}
		if remaining, running := c.Remaining(order.ID); running {
			fmt.Printf("order %s counting down, %s remaining\n",
				order.OrderNumber, countdown.FormatRemaining(remaining))
		}

	case "done":
		id, ok := argID(fields, 1)
		if !ok {
			fmt.Println("usage: done <order-id>")
			return false
		}
		order, err := c.Complete(ctx, id)
		if err != nil {
			fmt.Println("complete failed:", err)
			return false
		}
		fmt.Printf("order %s delivered\n", order.OrderNumber)

	case "history":
		records, err := c.HistoryByCourier(ctx, identity.UserID)
		if err != nil {
			fmt.Println("history failed:", err)
			return false
		}
		for _, rec := range records {
			fmt.Printf("  %s  %-10s accepted %s\n",
				rec.OrderNumber, rec.Status, rec.AcceptedAt.Format(time.RFC3339))
		}
		if len(records) == 0 {
			fmt.Println("  no deliveries yet")
		}

	case "hide":
		c.SetVisible(ctx, false)
		fmt.Println("screen hidden, periodic resync paused")

	case "show":
		c.SetVisible(ctx, true)

	case "quit", "exit":
		return true

	default:
		fmt.Println("unknown command, type 'help'")
	}
	return false
}

func argID(fields []string, idx int) (int64, bool) {
	if len(fields) <= idx {
		return 0, false
	}
	id, err := strconv.ParseInt(fields[idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// consoleSink renders router events as plain terminal lines.
type consoleSink struct {
	out *os.File
}

func (s *consoleSink) AddOrderPreview(order dto.OrderPayload) {
	fmt.Fprintf(s.out, "new order %s: %s -> %s (%s)\n",
		order.OrderNumber, order.CustomerName, order.DeliveryAddress, order.Amount)
}

func (s *consoleSink) ReplaceUnclaimed(orders []models.Order) {
	fmt.Fprintf(s.out, "unclaimed orders (%d):\n", len(orders))
	for _, o := range orders {
		fmt.Fprintf(s.out, "  #%d %s  %s -> %s  %s\n",
			o.ID, o.OrderNumber, o.CustomerName, o.DeliveryAddress, o.Amount.StringFixed(2))
	}
}

func (s *consoleSink) RemoveUnclaimed(orderID int64) {
	fmt.Fprintf(s.out, "order #%d is no longer available\n", orderID)
}

func (s *consoleSink) OrderAccepted(order dto.OrderPayload, mine bool) {
	if mine {
		fmt.Fprintf(s.out, "you claimed order %s\n", order.OrderNumber)
		return
	}
	fmt.Fprintf(s.out, "order %s was claimed by another courier\n", order.OrderNumber)
}

func (s *consoleSink) OrderProcessing(order dto.OrderPayload) {
	fmt.Fprintf(s.out, "order %s is out for delivery\n", order.OrderNumber)
}

func (s *consoleSink) OrderDelivered(order dto.OrderPayload) {
	fmt.Fprintf(s.out, "order %s delivered\n", order.OrderNumber)
}

func (s *consoleSink) Notify(message, kind string) {
	fmt.Fprintf(s.out, "[%s] %s\n", kind, message)
}

func (s *consoleSink) SessionTerminated(reason string) {
	fmt.Fprintf(s.out, "session terminated by server: %s\n", reason)
}
