// Package relay moves chat events between the durable store and live
// connections.
//
// # Message pipeline
//
// An inbound chat event moves through Received -> Persisted ->
// Delivered(sender) -> Delivered(recipient):
//
//  1. Validate the event (conversation, sender, content).
//  2. Persist via the store. Failure stops here: the error goes back to
//     the originator only and nothing is fanned out.
//  3. Deliver the persisted message to the sender's own connection, so its
//     UI shows the authoritative server-stamped record.
//  4. Deliver to the other participant if online. Offline recipients rely
//     on the REST read path; the realtime copy is simply skipped.
//
// Persist and fan-out run under a per-conversation ordering lock, so every
// connection observes a conversation's messages in exactly the order the
// store accepted them. Different conversations proceed concurrently.
//
// # Typing signals
//
// Typing hints are stateless pass-through: forwarded verbatim to the
// receiver if connected, dropped otherwise, with no ordering relationship
// to message delivery.
package relay
