// Package comm is the routing layer of the dataflow engine.
//
// Items are (ID, Package) pairs. An ID is minted once per logical data point
// and never changes while the item travels; every reassembly decision keys
// off it. A Package is the key-value state accumulated for that item.
//
// # Building blocks
//
//   - Subscriber: a point-to-point mailbox holding at most one pending
//     package per ID. Repeated transmits for the same ID merge.
//   - Channel: an N-input, M-output router. It merges the partial packages
//     its inputs yield for an ID, in ascending subscriber depth, and forwards
//     the result once the required keys are present. A joining channel also
//     waits for every input and drops items an exhausted input never sent.
//     Outputs are served round-robin or by broadcast.
//   - Collector: a router whose completion is "all declared keys present",
//     with a pluggable IntegrateFunc, feeding one synthetic output subscriber.
//   - Gatherer: a router whose completion is an arbitrary predicate over all
//     parts received for an ID.
//   - Splitter: projects each package onto several named outputs.
//   - Source and Pump: feed any Source into a Subscriber.
//
// # Shutdown
//
// Exhaustion is a value, never an error: YieldData returns ok == false once
// a gracefully shut subscriber has been drained. A forced shutdown discards
// queued data and makes blocked callers fail with SUBSCRIBER_KILLED. Routers
// shut their outputs gracefully when their inputs are exhausted, and force
// both sides when they are killed or hit an unrecoverable error.
//
// Every component runs on its own goroutine. When a polling round makes no
// progress the router blocks on a wake channel that its inputs signal, so an
// idle graph costs nothing.
package comm
