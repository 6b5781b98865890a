// Package voicegateway opens voice media sessions.
//
// Factory implements voice.GatewayFactory. Given the session parameters
// resolved by the coordinator it dials the voice websocket, identifies,
// discovers the external UDP address, selects an encryption mode and keeps
// the session alive with heartbeats. Voice server migrations announced
// through the session's tasks are followed by renegotiating against the new
// endpoint.
//
// Audio framing and encryption are not handled here; the session only
// exposes what a sender needs (SSRC, mode, secret key, UDP socket).
package voicegateway
