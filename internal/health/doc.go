// Package health provides composable liveness/readiness probes and the HTTP
// handlers that expose them on the ops listener and the public listener.
//
// [All] combines probes with AND semantics and [Fixed] is a static probe.
// [ShutdownGate] fails readiness during drain so load balancers stop routing
// new uploads and downloads before in-flight transfers are cut off.
package health
