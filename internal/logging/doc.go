// Package logging provides a simple leveled logging interface for
// media-grabber.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable (or
// DEBUG=true) and may be overridden at startup with SetLevel. Loggers created
// with With prefix each line with a tag such as a request id.
package logging
