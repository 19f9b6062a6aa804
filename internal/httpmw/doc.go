// Package httpmw is the middleware stack of the public file listener.
//
// httpserver.NewHandler composes it outermost first: security headers,
// panic recovery, request id, client IP, rate limiting, tracing, trace id
// header, metrics, request logger, access log, route annotation, then the
// chi router with the file API.
//
// Request bodies and query values never reach the logs. File paths do, as
// url.path, because they are the subject of every request.
package httpmw
