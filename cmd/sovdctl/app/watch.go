package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

// ErrCommandFailed is returned by Watch when the command ends in failure.
var ErrCommandFailed = errors.New("command failed")

// Watch prints the events of one command until its terminal event. A chunk
// received twice is printed once.
func Watch(ctx context.Context, wsURL string, out io.Writer) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = ws.Close()
	})
	defer stop()

	seen := make(map[int]bool)
	for {
		var e model.Event
		if err := ws.ReadJSON(&e); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return fmt.Errorf("server closed the stream: %d %s", ce.Code, ce.Text)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		switch e.Type {
		case model.EventResponse:
			if seen[e.Sequence] {
				continue
			}
			seen[e.Sequence] = true
			payload, _ := json.Marshal(e.Payload)
			final := ""
			if e.IsFinal {
				final = " (final)"
			}
			fmt.Fprintf(out, "[%d]%s %s\n", e.Sequence, final, payload)
		case model.EventStatus:
			fmt.Fprintf(out, "%s at %s\n", e.Status, e.CompletedAt.Format(time.RFC3339))
		case model.EventError:
			fmt.Fprintf(out, "failed at %s: %s\n", e.FailedAt.Format(time.RFC3339), e.ErrorMessage)
		}

		if e.IsTerminal() {
			if e.Type == model.EventError {
				return fmt.Errorf("%w: %s", ErrCommandFailed, e.ErrorMessage)
			}
			return nil
		}
	}
}
