package api

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vanguarddb/vanguard/pkg/catalog"
)

// LeaderFencingInterceptor rejects any RPC that mutates the Sys-Catalog
// unless this node currently holds Raft leadership. Every mutating
// catalog operation already returns ErrNotLeader on its own; the
// interceptor answers before the Manager method is called (the request
// has already been decoded by then).
func LeaderFencingInterceptor(mgr *catalog.Manager) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if isReadOnlyMethod(info.FullMethod) || mgr.IsLeader() {
			return handler(ctx, req)
		}

		leaderAddr := mgr.LeaderAddr()
		if leaderAddr == "" {
			return nil, status.Error(codes.Unavailable, "no leader elected yet")
		}
		return nil, status.Errorf(codes.FailedPrecondition, "not the leader, current leader is at %s", leaderAddr)
	}
}

// isReadOnlyMethod reports whether method needs no leadership, matched
// by a fixed prefix list rather than a per-RPC annotation.
func isReadOnlyMethod(method string) bool {
	parts := strings.Split(method, "/")
	if len(parts) < 2 {
		return false
	}
	methodName := parts[len(parts)-1]

	readOnlyPrefixes := []string{"List", "Get"}
	for _, prefix := range readOnlyPrefixes {
		if strings.HasPrefix(methodName, prefix) {
			return true
		}
	}

	readOnlyMethods := []string{"GetClusterStatus", "TSHeartbeat"}
	for _, m := range readOnlyMethods {
		if methodName == m {
			return true
		}
	}
	return false
}
