package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pingInterval     = 15 * time.Second
	pingWriteWait    = 5 * time.Second
	statsLogInterval = 30 * time.Second

	// maxMessageBytes bounds a single firehose message (8 MiB, matching the
	// upstream feed's own cap).
	maxMessageBytes = 1 << 23
)

// Ingester captures posts from the Jetstream firehose into a newline-
// delimited JSON log.
type Ingester struct {
	url    string
	policy CapturePolicy
	logger *slog.Logger
}

// NewIngester creates a firehose ingester for the given Jetstream endpoint.
func NewIngester(firehoseURL string, policy CapturePolicy, logger *slog.Logger) *Ingester {
	return &Ingester{
		url:    firehoseURL,
		policy: policy,
		logger: logger,
	}
}

func (in *Ingester) buildURL() (string, error) {
	u, err := url.Parse(in.url)
	if err != nil {
		return "", fmt.Errorf("parse firehose url: %w", err)
	}
	q := u.Query()
	if len(q["wantedCollections"]) == 0 {
		q.Add("wantedCollections", postCollection)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Capture opens one connection to the firehose and appends accepted posts to
// dest as newline-terminated JSON until d elapses or ctx is cancelled. The
// destination is truncated at the start of the session. A keep-alive ping is
// sent every 15 seconds independent of message flow. Decode failures on
// individual messages are swallowed; losing the connection is fatal and
// returns the count written so far along with the error.
func (in *Ingester) Capture(ctx context.Context, d time.Duration, dest string) (count int, err error) {
	logger := in.logger.With("session", uuid.NewString())

	wsURL, err := in.buildURL()
	if err != nil {
		return 0, err
	}

	logger.Info("connecting to firehose", "url", wsURL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return 0, fmt.Errorf("dial firehose: %w", err)
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create capture log: %w", err)
	}
	// os.File writes are unbuffered, so closing on any exit path leaves a
	// valid log with at worst one truncated final line.
	defer f.Close()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go in.keepAlive(sessionCtx, conn, logger)

	messages := make(chan []byte)
	readErrs := make(chan error, 1)
	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				readErrs <- err
				return
			}
			select {
			case messages <- message:
			case <-sessionCtx.Done():
				return
			}
		}
	}()

	deadline := time.NewTimer(d)
	defer deadline.Stop()

	var received, rejected int64
	lastStatsLog := time.Now()

	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()

		case <-deadline.C:
			logger.Info("capture complete", "records", count, "received", received, "path", dest)
			return count, nil

		case err := <-readErrs:
			return count, fmt.Errorf("read message: %w", err)

		case message := <-messages:
			received++

			record, err := Normalize(message, in.policy, time.Now)
			if err != nil {
				logger.Debug("failed to parse event", "error", err)
				continue
			}
			if record == nil {
				rejected++
				continue
			}

			line, err := json.Marshal(record)
			if err != nil {
				logger.Error("failed to encode record", "uri", record.URI, "error", err)
				continue
			}
			if _, err := f.Write(append(line, '\n')); err != nil {
				return count, fmt.Errorf("write capture log: %w", err)
			}
			count++

			if time.Since(lastStatsLog) >= statsLogInterval {
				logger.Info("capture stats",
					"received", received,
					"rejected", rejected,
					"written", count,
				)
				lastStatsLog = time.Now()
			}
		}
	}
}

// keepAlive sends a websocket ping on a fixed interval until ctx is
// cancelled or a ping fails.
func (in *Ingester) keepAlive(ctx context.Context, conn *websocket.Conn, logger *slog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWriteWait)); err != nil {
				logger.Warn("keep-alive ping failed", "error", err)
				return
			}
		}
	}
}
