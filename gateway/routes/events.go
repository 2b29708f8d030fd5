package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"datamarket/indexer"
)

const (
	wsWriteTimeout   = 10 * time.Second
	streamBufferSize = 256
)

var errEventsUnavailable = errors.New("event index not configured")

func parseEventQuery(r *http.Request) (indexer.Query, error) {
	query := r.URL.Query()
	q := indexer.Query{Type: strings.TrimSpace(query.Get("type"))}
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return q, fmt.Errorf("after must be an unsigned integer")
		}
		q.After = after
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return q, fmt.Errorf("limit must be a non-negative integer")
		}
		q.Limit = limit
	}
	return q, nil
}

func (mr *marketRoutes) listEvents(w http.ResponseWriter, r *http.Request) {
	if mr.events == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errEventsUnavailable)
		return
	}
	q, err := parseEventQuery(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	records, err := mr.events.List(r.Context(), q)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	out := make([]eventView, 0, len(records))
	for _, rec := range records {
		view, err := newEventView(rec)
		if err != nil {
			mr.fail(w, r, err)
			return
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

// streamEvents upgrades to a websocket and sends the backlog after the
// requested cursor followed by live records. A client that falls behind is
// disconnected and should reconnect with after set to the last sequence it saw.
func (mr *marketRoutes) streamEvents(w http.ResponseWriter, r *http.Request) {
	if mr.events == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errEventsUnavailable)
		return
	}
	q, err := parseEventQuery(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Reads are not expected; CloseRead reacts to the peer closing.
	ctx := conn.CloseRead(r.Context())
	err = mr.stream(ctx, conn, q)
	switch {
	case errors.Is(err, errSubscriberLagging):
		_ = conn.Close(websocket.StatusTryAgainLater, "subscriber lagging")
	case err != nil && websocket.CloseStatus(err) == -1 && ctx.Err() == nil:
		mr.logger.Warn("event stream failed", "error", err)
		_ = conn.Close(websocket.StatusInternalError, "stream error")
	}
}

var errSubscriberLagging = errors.New("subscriber lagging")

func (mr *marketRoutes) stream(ctx context.Context, conn *websocket.Conn, q indexer.Query) error {
	// Subscribe before reading the backlog so nothing committed in between is
	// missed; duplicates are skipped by sequence.
	updates, cancel := mr.events.Subscribe(streamBufferSize)
	defer cancel()

	cursor := q.After
	for {
		backlog, err := mr.events.List(ctx, indexer.Query{Type: q.Type, After: cursor})
		if err != nil {
			return err
		}
		for _, rec := range backlog {
			if err := writeRecord(ctx, conn, rec); err != nil {
				return err
			}
			cursor = rec.Sequence
		}
		if len(backlog) == 0 {
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-updates:
			if !ok {
				return errSubscriberLagging
			}
			if rec.Sequence <= cursor || (q.Type != "" && rec.Type != q.Type) {
				continue
			}
			if err := writeRecord(ctx, conn, rec); err != nil {
				return err
			}
			cursor = rec.Sequence
		}
	}
}

func writeRecord(ctx context.Context, conn *websocket.Conn, rec indexer.Record) error {
	view, err := newEventView(rec)
	if err != nil {
		return err
	}
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (mr *marketRoutes) exportEvents(w http.ResponseWriter, r *http.Request) {
	if mr.events == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errEventsUnavailable)
		return
	}
	q, err := parseEventQuery(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", `attachment; filename="market-events.parquet"`)
	n, err := mr.events.Export(r.Context(), w, q)
	if err != nil {
		// Headers may already be on the wire; log rather than rewrite them.
		mr.logger.Error("export events", "error", err, "rows", n)
		return
	}
	mr.logger.Info("exported events", "rows", n, "type", q.Type, "after", q.After)
}
