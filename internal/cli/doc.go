// Package cli builds the tuyatrace command tree.
//
// Commands:
//
//	run      - collector and watcher together (daemon mode)
//	collect  - one collection cycle, then exit
//	watch    - live stream ingestion only
//	status   - stored data, cursor, and last-run summary
//	version  - build information
//
// Every command loads the same YAML config (--config flag or the
// TUYATRACE_CONFIG environment variable) and opens the same SQLite
// database, so daemon and one-shot invocations share state.
package cli
