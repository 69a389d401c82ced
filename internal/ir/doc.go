// Package ir provides the value and query types shared by every relq package.
//
// This package contains type definitions and canonical serialization only.
// All other internal packages import ir; ir imports nothing internal, which
// keeps it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Filter values are restricted to IRValue (string, int64, bool, null,
//     arrays and objects of those). Floats are rejected because their textual
//     form is not canonical.
//   - Identifiers are either strings or int64 and are comparable, so they can
//     key maps.
//   - Canonical JSON (RFC 8785 key order, NFC strings, no HTML escaping) is the
//     ONLY serialization used to derive cache keys and descriptor ids.
package ir
