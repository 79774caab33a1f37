// Package logging builds the slog loggers used across reelpress: a console
// handler for interactive runs and a JSON handler for transcripts that get
// scraped by the dispatcher.
package logging
