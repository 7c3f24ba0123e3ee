// Package revkit is a client for the Revolt chat platform. It keeps a local
// mirror of users, servers, channels, members, roles, messages and emoji,
// built from the Ready snapshot and kept current by the WebSocket event
// stream, and exposes typed accessors and REST-backed mutations over it.
//
// Entities never hold pointers to each other. A Member stores its server
// and user IDs and resolves them through the client's managers on every
// call, so a lookup after deletion returns nil instead of a stale peer.
//
// Inbound frames are handled strictly one at a time: a handler that has to
// fetch an unknown author finishes before the next frame is looked at.
// Client events are delivered on that same goroutine.
package revkit
