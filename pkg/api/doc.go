/*
Package api implements the master's gRPC control-plane service: the RPC
surface external clients (CLI, tablet servers, and other masters) use
to drive every catalog operation.

# Wire protocol

There is no .proto file here. RPC messages are plain Go structs
encoded as JSON by pkg/rpcwire.Codec, a hand-written grpc
encoding.Codec. ServiceDesc (service.go) is the grpc.ServiceDesc a
protoc-gen-go-grpc run against a master.proto describing these same
RPCs would have generated — declared by hand instead, paired with
MasterServer (the server-side contract) and a generic unaryHandler
that does the decode/interceptor plumbing once instead of once per
method. The result is real gRPC transport, framing, flow control and
interceptors, without a code-generation step.

# Architecture

	┌─────────────── CLIENT (CLI / tablet server / master peer) ───────────────┐
	│  gRPC client, mTLS (client cert signed by the cluster CA)                │
	└─────────────────────────────┬─────────────────────────────────────────────┘
	                              │ gRPC over TLS 1.3
	┌─────────────────────────────▼─────────────────────────── MASTER NODE ────┐
	│  Server (pkg/api)                                                        │
	│    - LeaderFencingInterceptor: rejects writes unless this node leads     │
	│    - ServiceDesc: routes by method name to a Server method               │
	│  catalog.Manager                                                         │
	│    - proposes a Raft command per write, reads the in-memory registry    │
	└────────────────────────────────────────────────────────────────────────┘

# Leader fencing

LeaderFencingInterceptor runs before every RPC handler. Read methods
(List*, Get*, plus GetClusterStatus/TSHeartbeat) are always allowed;
every other method is rejected unless this node currently holds Raft
leadership, with codes.FailedPrecondition naming the current leader's
address when one is known, or codes.Unavailable when no leader is
elected yet. Manager's own write methods already return ErrNotLeader
independently — the interceptor runs after the request is decoded but
before the Manager method is called, so a client gets that answer as a
gRPC status, and so every write method doesn't need its own
ensureLeader() call.

# Usage

	ca := security.NewCertAuthority(store)
	...
	srv, err := api.NewServer(mgr, "master-1")
	if err != nil {
		panic(err)
	}
	go srv.Start(":9100")
	defer srv.Stop()

# See Also

  - pkg/catalog - the Manager these RPCs are a thin wire adapter over
  - pkg/rpcwire - the JSON grpc codec
  - pkg/tserverclient - the mirror-image client the master uses to call tablet servers
*/
package api
