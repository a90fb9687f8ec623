// Package p2p implements the priority-aware, byte-escaping framed packet
// stream used between a robot's microcontroller and a host over a
// byte-oriented duplex transport.
//
// The wire format, priority preemption, continuation and burst-pacing
// semantics are described in the project's packet stream specification.
// OutputStream suspends a lower-priority packet mid-transmission when a
// higher-priority one is committed, and resumes it afterward with
// IsContinuation set; InputStream reassembles both sides of that exchange.
package p2p
