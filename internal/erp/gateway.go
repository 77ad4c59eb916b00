package erp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"basket-order-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Gateway is the uniform call surface over every backend resource.
type Gateway struct {
	client  *Client
	session *SessionManager
	timeout time.Duration
	logger  *zap.Logger
}

// NewGateway creates a gateway that authorizes each call through session
func NewGateway(client *Client, session *SessionManager, timeout time.Duration) *Gateway {
	return &Gateway{
		client:  client,
		session: session,
		timeout: timeout,
		logger:  util.GetLogger(),
	}
}

// Call invokes operation on resource. An expired session is refreshed and the call retried once.
func (g *Gateway) Call(ctx context.Context, resource, operation string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	ctx, span := util.StartSpan(ctx, "Gateway.Call")
	defer span.End()
	span.SetAttributes(
		attribute.String("erp.resource", resource),
		attribute.String("erp.operation", operation),
	)

	start := time.Now()
	result, err := g.call(ctx, resource, operation, args, kwargs)
	util.ERPCallDuration.WithLabelValues(resource, operation, callStatus(err)).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (g *Gateway) call(ctx context.Context, resource, operation string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	token, err := g.session.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	result, expired, err := g.callWithTimeout(ctx, token, resource, operation, args, kwargs)
	if !expired {
		return result, err
	}

	g.logger.Warn("ERP session expired, refreshing",
		zap.String("resource", resource),
		zap.String("operation", operation))

	token, err = g.session.Refresh(ctx, token)
	if err != nil {
		return nil, err
	}

	result, expired, err = g.callWithTimeout(ctx, token, resource, operation, args, kwargs)
	if expired {
		g.session.Invalidate(token)
	}
	return result, err
}

func (g *Gateway) callWithTimeout(ctx context.Context, token, resource, operation string, args []any, kwargs map[string]any) (json.RawMessage, bool, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return g.client.call(ctx, token, resource, operation, args, kwargs)
}

func callStatus(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, ErrEmptyResult) {
		return "empty"
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return "auth"
	}
	return "error"
}
