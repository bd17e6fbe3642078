// Package supervisor implements the service's request execution envelope:
// a fixed pool of worker groups, each with a fixed number of handler slots,
// fed from a shared backlog queue.
//
// # Model
//
// A request occupies exactly one handler slot for its whole lifetime. At most
// Workers*Threads requests run concurrently; excess requests wait in the
// backlog. A request that runs longer than the configured timeout causes its
// entire worker group to be killed: the group's context is canceled, its
// sibling in-flight requests are aborted, and a fresh group is spawned so
// capacity is restored. A handler panic is treated the same way as a timeout.
//
// There is no per-request cancellation and no retry; a client whose request
// died sees a closed connection.
//
// # Usage
//
//	sup, err := supervisor.New(cfg.Supervisor, logg)
//	sup.Start()
//	app.Use(supervisor.Middleware(sup))
package supervisor
