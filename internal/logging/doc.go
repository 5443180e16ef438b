// Package logging provides opt-in file-based logging with rotation for
// langindexd. When --debug is set, comprehensive logs are written to
// ~/.langindex/logs/ for troubleshooting.
//
// By default logging is minimal and goes to stderr only; the serve
// subcommand always logs to file instead, since stdout is reserved for
// the JSON-RPC protocol stream.
package logging
