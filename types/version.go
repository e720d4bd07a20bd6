package types

// Version is the canonical project version.
// The CLI, the state snapshot writer, and the user agent string all report
// this constant per the lockstep versioning policy.
const Version = "0.4.2"
