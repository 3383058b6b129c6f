package cmd

// Exit codes for capfetch CLI
const (
	// ExitSuccess indicates the run completed
	ExitSuccess = 0

	// ExitFetchFailure indicates a fetch failed under the abort policy, or
	// any fetch failed with --fail-on-error
	ExitFetchFailure = 1

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a network/connection error that stopped the run
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
