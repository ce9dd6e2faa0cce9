// Package conditions implements crypto-conditions: conditions are public
// commitments identified by a SHA-256 fingerprint and a cost, fulfillments
// are the proofs that unlock them.
//
// Five families are supported: PREIMAGE-SHA-256, PREFIX-SHA-256,
// THRESHOLD-SHA-256, RSA-SHA-256 and ED25519-SHA-256. Values have a
// canonical DER encoding (ReadCondition, WriteCondition, ReadFulfillment,
// WriteFulfillment) and conditions have a textual ni:// URI form (ParseURI,
// Condition.String).
//
// Every value derives its fingerprint, cost and subtypes when it is
// constructed and is immutable afterwards. Signature checks go through a
// crypto.Backend passed to the RSA and Ed25519 constructors or to NewCodec.
package conditions
