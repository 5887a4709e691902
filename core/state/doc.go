// Package state runs multi-step conversations.
//
// A Flow is an ordered table of steps over a typed field record. Each step
// carries rules of the form (event pattern) -> transition, and the last step
// hands the collected record to the flow's terminal action. Sessions live in
// an injected Store keyed by (family, chat); a chat has at most one session
// per family. The Engine serialises inputs per chat and rejects competing
// input with ErrBusy while a step or terminal action is in flight.
package state
