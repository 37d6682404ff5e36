// Package worker implements the message-dispatch pipeline: for every raw
// message a consumer delivers, the worker validates the envelope against the
// router's registered types, validates the content against the matched
// handler's schema, invokes the handler under an optional self-expiring
// consumer span, and reports the outcome through a lifecycle event stream.
//
// The worker owns no queue machinery and no retry policy. The consumer
// decides delivery concurrency and acknowledgement; observers of the event
// stream decide what a failed message means.
package worker
