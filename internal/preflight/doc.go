// Package preflight checks that the host can run the configured services
// before anything is started.
//
// The checks cover:
//   - Write permissions and free space in the index directory
//   - The file descriptor limit (indexes keep many segment files open)
//   - Reachability of every record source
//   - Presence of every service context file
//
//	checker := preflight.New(preflight.WithOutput(os.Stdout))
//	results := checker.RunAll(ctx, cfg)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
