package dokan

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNoRequest is returned when the context is not the one of
// a request being served.
var ErrNoRequest = errors.New("context carries no dokan request")

// ExtendTimeout asks the driver to extend the timeout of the
// request being served, it must be called with the context
// passed to the provider and before the timeout elapses.
func ExtendTimeout(ctx context.Context, timeout time.Duration) error {
	req := requestFromContext(ctx)
	if req == nil || req.info == nil {
		return ErrNoRequest
	}
	gateway := req.dispatcher.gateway
	if gateway == nil {
		return errors.Wrap(ErrNoRequest, "dispatcher not mounted")
	}
	if !gateway.ResetTimeout(timeout, req.info) {
		return errors.Errorf("reset timeout of %s", req.operation)
	}
	return nil
}
