package server

import (
	"context"
	"errors"

	"github.com/pixperk/objmutex/pkg/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// converts domain errors to gRPC status errors
func toGRPCError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, types.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, types.ErrNotLeader):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, types.ErrMalformedEntry), errors.Is(err, types.ErrUnknownCommand):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// returns a not leader error with the given leader address
// includes the current leader address in the error message
func notLeaderError(leaderAddr string) error {
	if leaderAddr == "" {
		return status.Error(codes.Unavailable, "not leader, no leader elected")
	}
	return status.Errorf(codes.Unavailable, "not leader, leader raft address is %s", leaderAddr)
}
