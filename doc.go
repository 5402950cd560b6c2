// Package mdnsd implements a Multicast DNS responder and resolver per
// RFC 6762 and the DNS-SD conventions of RFC 6763.
//
// A Server owns one or more services advertised under "<hostname>.local",
// probes for and defends that name against collisions on every enabled
// interface, and answers incoming queries for its own records. The same
// Server can issue one-shot queries (Query) and long-lived subscriptions
// (BrowseNew) against services other responders on the network advertise.
//
// Construct a Server with New, call Start before registering services or
// issuing queries, and Stop to leave the network cleanly (a TTL=0 goodbye
// PTR for every registered service). All exported methods are safe to call from
// multiple goroutines; internally, every mutation of the data model runs
// on a single action-queue goroutine so callers never need their own
// locking around a Server.
package mdnsd
