// Package voice establishes voice connections.
//
// A Coordinator turns a JoinRequest into a live Connection. It sends a voice
// state command over a CommandChannel, waits on an EventBus for the platform to
// answer with the caller's voice state and a voice server assignment, and hands
// the joined SessionParameters to a GatewayFactory that opens the media session.
//
// The Registry holds at most one Connection per guild. Joins for a guild that
// already has a connection reuse it and only update the voice state.
package voice
