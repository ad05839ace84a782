// ABOUTME: URTP wire format package, a simplified RTP-inspired datagram framing
// ABOUTME: Provides Header pack/unpack and the fixed datagram size table
// Package urtp implements the datagram wire format: a fixed 14-byte header
// followed by a coding-scheme-dependent body.
//
// One datagram carries exactly one 20ms audio block. Header fields are
// fixed width and big-endian; body size depends on the negotiated Scheme.
package urtp
