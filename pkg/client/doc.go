/*
Package client is the CLI-facing wrapper around a master's gRPC API.

It connects over mTLS using a certificate already issued by the
cluster's certificate authority (pkg/security), then issues one call
per RPC via grpc.ClientConn.Invoke against the method names
pkg/api.ServiceDesc registers — there is no generated client stub,
since the wire format is pkg/rpcwire's JSON codec rather than
protobuf.

# Usage

	c, err := client.NewClient("master1.cluster.local:9100")
	if err != nil {
		panic(err)
	}
	defer c.Close()

	ns, err := c.CreateNamespace("orders", types.NamespaceTypeYSQL)
	if err != nil {
		panic(err)
	}

	table, err := c.CreateTable(api.CreateTableRequest{
		Name:        "orders",
		NamespaceID: ns.ID,
		NumTablets:  8,
	})

# See Also

  - pkg/api - the server side of this same wire protocol
  - pkg/security - certificate issuance and loading
*/
package client
