package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/dropdeck/dropdeck/internal/deck"
	"github.com/dropdeck/dropdeck/internal/outbox"
	"github.com/dropdeck/dropdeck/internal/realtime"
	"github.com/dropdeck/dropdeck/internal/rest"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps domain errors onto gRPC codes so clients can tell a
// rejected input from a missing session or an unreachable backend.
func toStatus(err error) error {
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	var apiErr *rest.APIError
	switch {
	case errors.Is(err, deck.ErrSignedOut), errors.Is(err, rest.ErrUnauthorized):
		return grpcstatus.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, deck.ErrNoConversation):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, outbox.ErrValidation):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, realtime.ErrNotConnected):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	case errors.As(err, &apiErr):
		return grpcstatus.Error(apiCode(apiErr), err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}

func apiCode(e *rest.APIError) codes.Code {
	switch {
	case e.Temporary():
		return codes.Unavailable
	case e.Status == http.StatusNotFound:
		return codes.NotFound
	case e.Status == http.StatusForbidden:
		return codes.PermissionDenied
	case e.Status == http.StatusConflict:
		return codes.AlreadyExists
	case e.Status >= 400 && e.Status < 500:
		return codes.InvalidArgument
	default:
		return codes.Unknown
	}
}
