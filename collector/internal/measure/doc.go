// Package measure wraps the Ookla speedtest CLI.
//
// Each Measure call launches the configured command up to retry_count+1
// times, bounding every launch by command_timeout_sec and waiting a fixed
// retry_wait_sec between launches. Failures are carried as data: the result
// is always a types.Sample, either ok with the parsed metrics or error with a
// cause of the form
//
//	timeout
//	nonzero_exit:<code>
//	parse_error:<detail>
//	exec_error:<detail>
//	canceled:<detail>
//
// The runner, sleeper and clock are Invoker fields so tests exercise the
// retry loop without launching processes or sleeping.
package measure
