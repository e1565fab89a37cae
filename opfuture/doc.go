// Package opfuture implements the operation futures the LibOS façade
// schedules for accept/connect/push/pushto/pop: small Poll-driven state
// machines over a transport.Verbs handle, each producing a Result packed in
// the fixed qresult shape once it reaches sched.Ready. Grounded on the
// teacher's api/result.go (Result[T]/Cancelable) generalized from a
// single-shot value+error pair into the opcode-tagged union the façade
// needs to expose through one C-ABI-shaped record.
package opfuture
