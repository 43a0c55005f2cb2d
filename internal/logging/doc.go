// Package logging sets up structured slog output for constellation.
//
// Logs are JSON lines written to a size-rotated file under
// ~/.constellation/logs/ and, unless the server runs quietly, to stderr.
// The viewer reads those files back for `constellation logs`.
package logging
