package grpc

import (
	"errors"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"omvstack.control/internal/core/domain"
)

var remoteToStatus = map[int]codes.Code{
	domain.CodeInternal:        codes.Internal,
	domain.CodeServiceNotFound: codes.NotFound,
	domain.CodeMethodNotFound:  codes.Unimplemented,
	domain.CodeInvalidParams:   codes.InvalidArgument,
	domain.CodeBusy:            codes.Aborted,
	domain.CodeCommandFailed:   codes.FailedPrecondition,
	domain.CodeUnauthenticated: codes.Unauthenticated,
}

// toStatus converts an engine error to a gRPC status carrying the message
// unchanged.
func toStatus(err error) (*domain.RemoteError, error) {
	var remote *domain.RemoteError
	if !errors.As(err, &remote) {
		remote = domain.NewRemoteError(domain.CodeInternal, err.Error())
	}
	code, ok := remoteToStatus[remote.Code]
	if !ok {
		code = codes.Unknown
	}
	return remote, status.Error(code, remote.Message)
}

// fromStatus rebuilds the remote error on the client. The exact code comes
// from the trailer when the server sent one.
func fromStatus(err error, trailer metadata.MD) *domain.RemoteError {
	st, ok := status.FromError(err)
	if !ok {
		return domain.NewRemoteError(domain.CodeInternal, err.Error())
	}

	if values := trailer.Get(codeKey); len(values) > 0 {
		if code, err := strconv.Atoi(values[0]); err == nil {
			return domain.NewRemoteError(code, st.Message())
		}
	}
	for remote, code := range remoteToStatus {
		if code == st.Code() && remote != domain.CodeInternal {
			return domain.NewRemoteError(remote, st.Message())
		}
	}
	return domain.NewRemoteError(domain.CodeInternal, st.Message())
}
