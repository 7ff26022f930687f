// Package presence tracks which users are reachable for realtime delivery.
//
// The Registry maps a user id to at most one live Conn. Connecting again
// under the same identity supersedes the previous handle: the old Conn is
// closed, stops accepting events, and a later Disconnect carrying it is
// ignored so it cannot evict the newer connection.
//
// Sends are non-blocking. A full buffer or a stale handle drops the event
// for that connection only; durable state lives in the store, never here.
package presence
