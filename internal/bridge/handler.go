package bridge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/pawnbridge/internal/command"
	"github.com/signalsfoundry/pawnbridge/internal/logging"
)

// Handler serves one request per connection. It shares state with the
// simulation only through the mailbox, the subscription set, the outbox and
// the published roster.
type Handler struct {
	mailbox *Mailbox
	subs    *Subscriptions
	outbox  *Outbox
	roster  *Roster
	decoder *command.Decoder
	limiter *hostLimiter

	readTimeout  time.Duration
	writeTimeout time.Duration

	log     logging.Logger
	metrics MetricsRecorder
}

// Serve reads a single request from conn, writes the response and closes conn.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	start := time.Now()
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	ctx, log := logging.WithConnLogger(ctx, h.log, remote)
	ctx, span := tracer().Start(ctx, "pawnbridge.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("conn_id", logging.ConnIDFromContext(ctx)),
			attribute.String("net.peer.addr", remote),
		),
	)
	defer span.End()

	kind, result := h.serve(ctx, log, conn, remote)

	span.SetAttributes(
		attribute.String("request.kind", string(kind)),
		attribute.String("request.result", result),
	)
	if result != resultOK {
		span.SetStatus(codes.Error, result)
	}
	h.metrics.ObserveRequest(string(kind), result, time.Since(start))
}

func (h *Handler) serve(ctx context.Context, log logging.Logger, conn net.Conn, remote string) (requestKind, string) {
	if h.readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
			log.Warn(ctx, "failed to set read deadline", logging.Err(err))
		}
	}

	buf := make([]byte, maxRequestSize)
	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			log.Warn(ctx, "failed to read request", logging.Err(err))
			return kindEmpty, resultTransport
		}
		return kindEmpty, resultOK
	}

	h.setWriteDeadline(ctx, log, conn)
	if !h.limiter.Allow(remote) {
		log.Warn(ctx, "rate limit exceeded")
		if _, err := io.WriteString(conn, TokenRateLimited); err != nil {
			log.Warn(ctx, "failed to write response", logging.Err(err))
			return kindRejected, resultTransport
		}
		return kindRejected, resultRateLimited
	}

	req := strings.TrimSpace(string(buf[:n]))
	log.Debug(ctx, "received request", logging.String("request", req))

	w := bufio.NewWriter(conn)

	kind := classify(req)
	var result string
	switch kind {
	case kindGetPawns:
		result = h.getPawns(ctx, log, w)
	case kindSubscribe:
		result = h.subscribe(ctx, log, w, req)
	case kindStateUpdates:
		result = h.stateUpdates(ctx, log, w)
	default:
		result = h.enqueue(ctx, log, w, req)
	}

	if err := w.Flush(); err != nil {
		log.Warn(ctx, "failed to write response", logging.String("kind", string(kind)), logging.Err(err))
		return kind, resultTransport
	}
	return kind, result
}

func (h *Handler) getPawns(ctx context.Context, log logging.Logger, w *bufio.Writer) string {
	payload, err := h.roster.JSON()
	if err != nil {
		log.Error(ctx, "failed to encode pawn roster", logging.Err(err))
		_, _ = w.WriteString(TokenError)
		return resultError
	}
	_, _ = w.Write(payload)
	return resultOK
}

func (h *Handler) subscribe(ctx context.Context, log logging.Logger, w *bufio.Writer, req string) string {
	pawnID, err := h.decoder.DecodeSubscribe([]byte(req))
	if err != nil {
		log.Warn(ctx, "rejected subscription", logging.Err(err))
		_, _ = w.WriteString(TokenError)
		return resultError
	}
	if h.subs.Add(pawnID) {
		log.Info(ctx, "pawn subscribed", logging.Int("pawn_id", pawnID))
	}
	_, _ = w.WriteString(TokenSubscribed)
	return resultOK
}

// stateUpdates drains the outbox. Entries drained here are gone even if the
// write later fails; delivery is best effort.
func (h *Handler) stateUpdates(ctx context.Context, log logging.Logger, w *bufio.Writer) string {
	updates := h.outbox.PopAll()
	for _, payload := range updates {
		_, _ = w.Write(payload)
		_ = w.WriteByte('\n')
	}
	_, _ = w.WriteString(TokenEndUpdate)
	log.Debug(ctx, "delivered state updates", logging.Int("count", len(updates)))
	return resultOK
}

func (h *Handler) enqueue(ctx context.Context, log logging.Logger, w *bufio.Writer, req string) string {
	cmd, err := h.decoder.Decode([]byte(req))
	switch {
	case errors.Is(err, command.ErrUnknownCommand):
		log.Warn(ctx, "unknown command type", logging.Err(err))
		_, _ = w.WriteString(TokenInvalidCommand)
		return resultError
	case err != nil:
		log.Warn(ctx, "rejected command", logging.Err(err))
		_, _ = w.WriteString(TokenError)
		return resultError
	}

	replaced := h.mailbox.Put(cmd)
	log.Debug(ctx, "queued command",
		logging.String("kind", string(cmd.Kind())),
		logging.Int("pawn_id", cmd.Pawn()),
		logging.Bool("replaced", replaced),
	)
	_, _ = w.WriteString(TokenAck)
	return resultOK
}

func (h *Handler) setWriteDeadline(ctx context.Context, log logging.Logger, conn net.Conn) {
	if h.writeTimeout <= 0 {
		return
	}
	if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		log.Warn(ctx, "failed to set write deadline", logging.Err(err))
	}
}
