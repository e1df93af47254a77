// Package future provides the deferred result handle returned by aggregated
// remote calls.
//
// A [Future] is created by the caller before its call record is pushed. The
// record carries the future's [Slot]; the transport completes the slot once
// when the reply arrives. The caller either blocks on [Future.Wait] or polls
// with [Future.WaitProgress], which keeps driving the transport while it
// waits.
package future
