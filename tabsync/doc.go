// Package tabsync relays envelopes between routers that belong to the same
// logical session, one router per tab or process.
//
// Every router posts the envelopes it delivered on a single, well-known
// channel (ChannelName) tagged with its own session id. Frames carrying the
// local session id are dropped on receipt; anything else is handed to the
// router, which delivers it locally without relaying it again. This keeps two
// routers from bouncing the same event back and forth forever.
//
// Relay is advisory: posting failures are logged and never affect local delivery.
//
// Channels:
//   - LocalHub: an in-process broadcast channel, the moral equivalent of a
//     browser BroadcastChannel shared by same-origin tabs
//   - NATSChannel: frames travel on a NATS subject, for routers living in
//     different processes
package tabsync
