// Package suiterun runs independently configured test suites, one
// process per domain, and reports a single aggregate result.
package suiterun

// Version is the suiterun release version.
const Version = "0.3.0"
