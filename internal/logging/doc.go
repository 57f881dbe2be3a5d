// Package logging provides opt-in file-based logging with rotation for
// Ember. By default, logging stays minimal and goes to stderr only; a
// file path (e.g. configured by the embedding CLI's --debug flag) turns
// on rotating JSON logs alongside it.
package logging
