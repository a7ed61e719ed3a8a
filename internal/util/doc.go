// Package util provides small helpers shared across the server packages:
// random identifier generation and safe string truncation for logging.
package util
