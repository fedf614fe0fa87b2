// Package exitcodes defines the process exit codes used by suiterun.
//
//   - Success (0): every domain passed
//   - Failure (1): at least one domain failed, or the run was aborted
//   - OrchestrationErr (2): the run could not start (empty registry,
//     duplicate or unknown domain, unresolvable configuration context)
package exitcodes

const (
	Success          = 0
	Failure          = 1
	OrchestrationErr = 2
)
