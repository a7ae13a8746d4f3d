// Package ir provides the canonical value layer shared by the scheduler.
//
// Condition sub-cursors, evaluation records and run-request identities are all
// expressed with the sealed Value variants defined here and serialized with
// MarshalCanonical, so the same logical content always produces the same bytes
// and therefore the same hash.
//
// Constraints:
//   - No float variant; numbers are int64 (timestamps are unix nanoseconds)
//   - Object keys are ordered by UTF-16 code units (RFC 8785)
//   - Hashes are SHA-256 with a versioned domain prefix
//
// ir imports nothing internal.
package ir
