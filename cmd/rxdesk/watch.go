package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rxdesk/rxdesk/internal/ws"
)

// cmdWatch streams order events from the backend until interrupted.
func (a *app) cmdWatch(ctx context.Context) error {
	target, err := wsURL(a.baseURL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	defer conn.Close()

	fmt.Fprintf(a.out, "Watching order events on %s (Ctrl-C to stop)\n", target)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	events := make(chan ws.OrderEvent)
	errs := make(chan error, 1)
	go func() {
		for {
			var event ws.OrderEvent
			if err := conn.ReadJSON(&event); err != nil {
				errs <- err
				return
			}
			events <- event
		}
	}()

	for {
		select {
		case event := <-events:
			a.printEvent(event)
		case err := <-errs:
			return fmt.Errorf("connection closed: %w", err)
		case <-interrupt:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *app) printEvent(event ws.OrderEvent) {
	stamp := event.Timestamp.Format("15:04:05")
	if event.Order == nil {
		fmt.Fprintf(a.out, "[%s] %s\n", stamp, event.Type)
		return
	}
	switch event.Type {
	case "order.created":
		fmt.Fprintf(a.out, "[%s] order #%d created by %s, total %s\n",
			stamp, event.Order.ID, event.Order.User, event.Order.TotalAmount.StringFixed(2))
	case "order.status-changed":
		fmt.Fprintf(a.out, "[%s] order #%d %s -> %s\n",
			stamp, event.Order.ID, event.OldStatus, event.Order.Status)
	default:
		fmt.Fprintf(a.out, "[%s] %s order #%d\n", stamp, event.Type, event.Order.ID)
	}
}

func wsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid backend url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
