// Package presence tracks which hosts are alive.
//
// The Registry is keyed by report topic and indexed by participant id.
// Participants come from two places: static entries in configuration
// (never removed) and registrations received on the register topic.
//
// # Expiry
//
// Sweep compares each participant's last-seen time with its report
// interval:
//
//	silent > 2 × interval  and marked up  → MarkDown (publish "false")
//	silent > 5 × interval  and dynamic    → Remove   (stop tracking)
//
// # Idempotent Availability
//
// MarkedUp remembers the value last published. Registrations and reports
// ask for "true" only when MarkedUp is false, and Sweep asks for "false"
// only when it is true. The caller records a transition with SetMarked
// after its publish succeeds, so each transition is published once and a
// failed publish is asked for again.
package presence
