// Command examshell runs the exam browser's policy and integrity layer.
//
// Subcommands:
//   - run: start a session on the headless sandbox engine with the
//     diagnostics server, until interrupted
//   - keys: print the integrity keys a server would expect for a URL
//   - policy: print the effective policy matrix as YAML
//
// Exam settings are given as flags. Host settings (logging, diagnostics,
// sandbox, bridge limits) come from EXAMSHELL_* environment variables.
//
// Example Usage:
//
//	examshell keys --secret s1 --salt a1 https://example.org/exam
//	examshell policy --clipboard block --popups block
//	EXAMSHELL_LOG_DEV=true examshell run --secret s1 --salt a1 --start-url https://example.org/exam
package main
