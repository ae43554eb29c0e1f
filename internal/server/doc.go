// Package server provides HTTP routing, middleware and the handlers behind the approval callback and the public page.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] registers method patterns on
// an [http.ServeMux]; middleware added first runs outermost.
//
// # Approval Callback
//
// [ApprovalHandler] accepts one signer callback carrying the flow secret and a session credential, then delivers
// the result through a channel. Any later request is refused.
//
// # Public Surface
//
// [NewPublicRouter] serves the merged profile of any identity on GET /pub/{pubkey}, a liveness probe on
// GET /healthz and Prometheus metrics on GET /metrics.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
