// Package mqtt owns the broker connection for wcnotify.
//
// A [Manager] brings the connection up in three blocking steps: wait
// for the host network to be usable, complete the MQTT handshake, then
// subscribe to every topic in the [topics.Registry]. The first two
// steps retry forever at a fixed interval (see [connwatch.Poll]). A
// failed subscription is logged and skipped.
//
// [Manager.Run] is the single control loop. Each iteration checks that
// the session is still alive (reconnecting from scratch if not),
// services at most one inbound message, and then yields briefly.
// Inbound messages arrive on the Eclipse Paho v5 client's goroutine and
// are queued in a bounded inbox, so handlers always run one at a time
// on the loop goroutine.
//
// When an availability topic is configured the session registers a
// retained "offline" will message, publishes a retained "online" after
// each handshake, and publishes "offline" again on graceful shutdown.
package mqtt
