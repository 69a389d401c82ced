package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/roach88/relq/internal/ir"
)

// DefaultSubjectPrefix is the subject prefix when none is configured.
const DefaultSubjectPrefix = "relq.fetch"

// responderQueue is the queue group shared by all responders, so each
// request is answered once.
const responderQueue = "relq-responders"

// NATSFetcher fetches reference pages via NATS request/reply on
// <prefix>.<resource>.
type NATSFetcher struct {
	conn    *nats.Conn
	prefix  string
	timeout time.Duration
}

// NewNATSFetcher creates a fetcher over conn. timeout applies when the
// caller's context has no deadline.
func NewNATSFetcher(conn *nats.Conn, prefix string, timeout time.Duration) *NATSFetcher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NATSFetcher{conn: conn, prefix: prefix, timeout: timeout}
}

// Subject returns the request subject for resource.
func (f *NATSFetcher) Subject(resource string) string {
	return f.prefix + "." + resource
}

// FetchManyByReference implements Fetcher.
func (f *NATSFetcher) FetchManyByReference(ctx context.Context, resource string, params ir.ReferenceParams) (ir.FetchResult, error) {
	if f.conn == nil || !f.conn.IsConnected() {
		return ir.FetchResult{}, NewError(resource, params, true, nats.ErrConnectionClosed, "NATS connection not available")
	}

	reqData, err := json.Marshal(natsRequest{Params: params})
	if err != nil {
		return ir.FetchResult{}, NewError(resource, params, false, err, "marshal request")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	subject := f.Subject(resource)
	msg, err := f.conn.RequestWithContext(ctx, subject, reqData)
	if err != nil {
		temporary := errors.Is(err, nats.ErrNoResponders) ||
			errors.Is(err, nats.ErrTimeout) ||
			errors.Is(err, context.DeadlineExceeded)
		return ir.FetchResult{}, NewError(resource, params, temporary, err, "NATS request to %s failed", subject)
	}

	resp, err := decodeResponse(msg.Data)
	if err != nil {
		return ir.FetchResult{}, NewError(resource, params, false, err, "NATS reply on %s", subject)
	}
	if resp.Error != "" {
		return ir.FetchResult{}, NewError(resource, params, resp.Temporary, nil, "remote service error: %s", resp.Error)
	}
	res, err := resp.result()
	if err != nil {
		return ir.FetchResult{}, NewError(resource, params, false, err, "NATS reply on %s", subject)
	}
	return res, nil
}

// Responder answers NATS fetch requests from a Fetcher.
type Responder struct {
	conn    *nats.Conn
	prefix  string
	fetcher Fetcher
	timeout time.Duration
	logger  *slog.Logger
}

// NewResponder creates a responder serving fetcher on <prefix>.*.
func NewResponder(conn *nats.Conn, prefix string, fetcher Fetcher, logger *slog.Logger) *Responder {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		conn:    conn,
		prefix:  prefix,
		fetcher: fetcher,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// Start subscribes and returns the subscription. Message handlers run with
// a context derived from ctx; cancel ctx and drain the subscription to stop.
func (r *Responder) Start(ctx context.Context) (*nats.Subscription, error) {
	subject := r.prefix + ".*"
	sub, err := r.conn.QueueSubscribe(subject, responderQueue, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		r.handle(msgCtx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	if err := r.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription %s: %w", subject, err)
	}
	r.logger.Info("responder started", "subject", subject, "queue", responderQueue)
	return sub, nil
}

// Serve runs the responder until ctx is done.
func (r *Responder) Serve(ctx context.Context) error {
	sub, err := r.Start(ctx)
	if err != nil {
		return err
	}
	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("drain responder: %w", err)
	}
	return nil
}

func (r *Responder) handle(ctx context.Context, msg *nats.Msg) {
	resource := strings.TrimPrefix(msg.Subject, r.prefix+".")

	var req natsRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		r.reply(msg, response{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	res, err := r.fetcher.FetchManyByReference(ctx, resource, req.Params)
	if err != nil {
		r.logger.Warn("fetch failed",
			"resource", resource,
			"target", req.Params.Target,
			"id", req.Params.ID.String(),
			"error", err)
		r.reply(msg, errorResponse(err))
		return
	}
	r.reply(msg, resultResponse(res))
}

func (r *Responder) reply(msg *nats.Msg, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(response{Error: fmt.Sprintf("marshal reply: %v", err)})
	}
	if err := msg.Respond(data); err != nil {
		r.logger.Warn("reply failed", "subject", msg.Subject, "error", err)
	}
}
