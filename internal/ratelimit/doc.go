// Package ratelimit is per-client token bucket limiting for the public
// listener, keyed on the client IP resolved by httpmw.ClientIP.
//
// It is in-memory and per-instance. Mutating file requests (PUT, DELETE)
// draw more tokens than reads, so one client cannot churn a site's disk at
// the read rate. Bandwidth is not limited; upload size is bounded separately
// by the file API's max-upload-bytes.
package ratelimit
