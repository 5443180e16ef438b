// Package preflight provides system validation and pre-flight checks
// to ensure langindexd can run successfully before starting operations.
//
// The package validates:
//   - Disk space availability (minimum 100MB)
//   - Memory (a fixed 4GB estimate compared against a 1GB minimum;
//     the system's available memory is not read)
//   - Write permissions in the workspace root
//   - File descriptor limits (minimum 1024)
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, "/path/to/project")
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
