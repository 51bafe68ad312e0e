// Package logging provides file-based logging with rotation for docsearch.
// The CLI writes its logs to ~/.docsearch/logs/server.log on every run: at
// info level by default, and at debug level when the --debug flag is set.
// Nothing is written to stderr, so command output stays clean.
package logging
