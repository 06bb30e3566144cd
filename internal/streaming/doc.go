// Package streaming writes long-running HTTP response bodies with per-write,
// idle and total-duration timeouts, so a stalled client or a stalled producer
// cannot pin a request forever.
//
// Errors are reported through the sentinels ErrClientGone, ErrWriteTimeout and
// ErrStreamCanceled; callers use errors.Is to tell them apart.
package streaming
