/*
Package operations records and deduplicates side effects performed by the reconciler.

An Operation is a versioned handler that performs at most one side effect, for example
submitting one role transaction. ExecuteOperation runs it and stores a Report in the bundle's
Reporter. A later execution with the same definition and input returns the stored report
instead of repeating the side effect, which is what makes re-running a partially applied
reconciliation safe. WithReuseCheck lets the caller reject a stored report, e.g. when the
transaction it describes is no longer pending. A failed report is only reused when
WithFailedReuseCheck accepts it.

Reporters:
  - MemoryReporter keeps reports for the lifetime of the process.
  - FileReporter appends reports to a JSON lines journal and reloads it on start.

# Basic Usage

	op := operations.NewOperation("send-role-transaction", semver.MustParse("1.0.0"),
		"Submit a role transaction", handler)

	bundle := operations.NewBundle(ctx, lggr, operations.NewMemoryReporter())
	report, err := operations.ExecuteOperation(bundle, op, deps, input)
*/
package operations
