package operations

import (
	"errors"
	"fmt"

	"github.com/avast/retry-go/v4"
)

var ErrNotSerializable = errors.New("data cannot be safely written to disk without data lost, " +
	"avoid type that can't be serialized")

// ExecuteConfig is the configuration for the ExecuteOperation function.
type ExecuteConfig[IN, OUT, DEP any] struct {
	retryConfig      RetryConfig[IN, DEP]
	reuseCheck       func(prev Report[IN, OUT]) bool
	failedReuseCheck func(prev Report[IN, OUT]) bool
}

type ExecuteOption[IN, OUT, DEP any] func(*ExecuteConfig[IN, OUT, DEP])

type RetryConfig[IN, DEP any] struct {
	// Enabled determines if the retry is enabled for the operation.
	Enabled bool

	// Policy is the retry policy to control the behavior of the retry.
	Policy RetryPolicy

	// InputHook returns an updated input before the operation is retried.
	InputHook func(attempt uint, err error, input IN, deps DEP) IN
}

func newDisabledRetryConfig[IN, DEP any]() RetryConfig[IN, DEP] {
	return RetryConfig[IN, DEP]{
		Enabled: false,
		Policy: RetryPolicy{
			MaxAttempts: 10,
		},
	}
}

// RetryPolicy defines the arguments to control the retry behavior.
type RetryPolicy struct {
	MaxAttempts uint
}

func (p RetryPolicy) options() []retry.Option {
	return []retry.Option{
		retry.Attempts(p.MaxAttempts),
	}
}

// WithRetry enables the default retry for the operation.
func WithRetry[IN, OUT, DEP any]() ExecuteOption[IN, OUT, DEP] {
	return func(c *ExecuteConfig[IN, OUT, DEP]) {
		c.retryConfig.Enabled = true
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig[IN, OUT, DEP any](config RetryConfig[IN, DEP]) ExecuteOption[IN, OUT, DEP] {
	return func(c *ExecuteConfig[IN, OUT, DEP]) {
		c.retryConfig = config
	}
}

// WithReuseCheck registers a predicate that decides whether a previous successful report may
// be returned instead of executing the operation again. When the predicate returns false the
// operation is executed and the new report is marked as Forced.
//
// The reconciler uses it to resend a role transaction once its earlier submission is no longer
// pending.
func WithReuseCheck[IN, OUT, DEP any](check func(prev Report[IN, OUT]) bool) ExecuteOption[IN, OUT, DEP] {
	return func(c *ExecuteConfig[IN, OUT, DEP]) {
		c.reuseCheck = check
	}
}

// WithFailedReuseCheck registers a predicate consulted when the latest report for the input
// failed. When it returns true the failed report and its error are returned and the operation
// is not executed. Without it a failed report is never reused.
func WithFailedReuseCheck[IN, OUT, DEP any](check func(prev Report[IN, OUT]) bool) ExecuteOption[IN, OUT, DEP] {
	return func(c *ExecuteConfig[IN, OUT, DEP]) {
		c.failedReuseCheck = check
	}
}

// ExecuteOperation executes an operation with the given input and dependencies.
// A previous successful execution with the same definition and input, found in the bundle's
// reporter, is returned instead of executing again. Previous failed executions are only reused
// through WithFailedReuseCheck.
//
// Skipped executions are not added to the reporter again.
//
// Retry is disabled by default. Use WithRetry or WithRetryConfig to enable it and
// NewUnrecoverableError inside the handler to stop retrying early.
//
// The input and output must be JSON serializable.
func ExecuteOperation[IN, OUT, DEP any](
	b Bundle,
	operation *Operation[IN, OUT, DEP],
	deps DEP,
	input IN,
	opts ...ExecuteOption[IN, OUT, DEP],
) (Report[IN, OUT], error) {
	if !IsSerializable(b.Logger, input) {
		return Report[IN, OUT]{}, fmt.Errorf("operation %s input: %w", operation.def.ID, ErrNotSerializable)
	}

	executeConfig := &ExecuteConfig[IN, OUT, DEP]{
		retryConfig: newDisabledRetryConfig[IN, DEP](),
	}
	for _, opt := range opts {
		opt(executeConfig)
	}

	forced := false
	if previousReport, found := loadLatestReport[IN, OUT](b, operation.def, input); found {
		if previousReport.Err != nil {
			if executeConfig.failedReuseCheck != nil && executeConfig.failedReuseCheck(previousReport) {
				b.Logger.Infow("Previous attempt failed but still stands. Returning its result", "id", operation.def.ID,
					"version", operation.def.Version, "report_id", previousReport.ID)

				return previousReport, previousReport.Err
			}
		} else {
			if executeConfig.reuseCheck == nil || executeConfig.reuseCheck(previousReport) {
				b.Logger.Infow("Operation already executed. Returning previous result", "id", operation.def.ID,
					"version", operation.def.Version, "report_id", previousReport.ID)

				return previousReport, nil
			}
			b.Logger.Infow("Previous result rejected, executing operation again", "id", operation.def.ID,
				"report_id", previousReport.ID)
			forced = true
		}
	}

	var output OUT
	var err error

	if executeConfig.retryConfig.Enabled {
		var inputTemp = input

		retryOpts := executeConfig.retryConfig.Policy.options()
		retryOpts = append(retryOpts, retry.Context(b.GetContext()))
		retryOpts = append(retryOpts, retry.OnRetry(func(attempt uint, err error) {
			b.Logger.Infow("Operation failed. Retrying...",
				"operation", operation.def.ID, "attempt", attempt, "error", err)

			if executeConfig.retryConfig.InputHook != nil {
				inputTemp = executeConfig.retryConfig.InputHook(attempt, err, inputTemp, deps)
			}
		}))

		output, err = retry.DoWithData(
			func() (OUT, error) {
				return operation.execute(b, deps, inputTemp)
			},
			retryOpts...,
		)
	} else {
		output, err = operation.execute(b, deps, input)
	}

	if err == nil && !IsSerializable(b.Logger, output) {
		return Report[IN, OUT]{}, fmt.Errorf("operation %s output: %w", operation.def.ID, ErrNotSerializable)
	}

	report := NewReport(operation.def, input, output, err)
	report.Forced = forced
	if err = b.reporter.AddReport(genericReport(report)); err != nil {
		return Report[IN, OUT]{}, err
	}

	if report.Err != nil {
		return report, report.Err
	}

	return report, nil
}

// NewUnrecoverableError creates an error that stops any configured retry.
func NewUnrecoverableError(err error) error {
	return retry.Unrecoverable(err)
}

// loadLatestReport returns the newest report for the same definition and input, failed or not.
func loadLatestReport[IN, OUT any](
	b Bundle, def Definition, input IN,
) (Report[IN, OUT], bool) {
	prevReports, err := b.reporter.GetReports()
	if err != nil {
		b.Logger.Errorw("Failed to get reports", "error", err)
		return Report[IN, OUT]{}, false
	}
	currentHash, err := constructUniqueHashFrom(b.reportHashCache, def, input)
	if err != nil {
		b.Logger.Errorw("Failed to construct unique hash", "error", err)
		return Report[IN, OUT]{}, false
	}

	// newest first, so a forced re-execution wins over the report it replaced
	for i := len(prevReports) - 1; i >= 0; i-- {
		report := prevReports[i]
		reportHash, err := constructUniqueHashFrom(b.reportHashCache, report.Def, report.Input)
		if err != nil {
			b.Logger.Errorw("Failed to construct unique hash for previous report", "error", err)
			continue
		}
		if reportHash != currentHash {
			continue
		}
		typedReport, ok := typeReport[IN, OUT](report)
		if !ok {
			b.Logger.Debugw(fmt.Sprintf("Previous %s execution found but couldn't find its matching Report", def.ID), "report_id", report.ID)
			continue
		}

		return typedReport, true
	}

	return Report[IN, OUT]{}, false
}
