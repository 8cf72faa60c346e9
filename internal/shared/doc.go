// Package shared holds helpers used across keyforge packages. Its testutil
// subpackage provides key fixtures and a buffering slog handler for tests.
package shared
