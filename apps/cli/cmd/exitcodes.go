package cmd

// Exit codes for the blitz CLI
const (
	// ExitSuccess indicates all selected tests passed
	ExitSuccess = 0

	// ExitTestFailure indicates one or more tests failed or errored
	ExitTestFailure = 1

	// ExitConfigError indicates a configuration-time error: unknown
	// fixture, scope violation, or dependency cycle
	ExitConfigError = 3

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
