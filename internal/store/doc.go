// Package store persists the instrument to resumable-session-id map.
// It is SQLite-backed so an interrupted exam can be resumed across process
// restarts; entries are saved after session creation and cleared once the
// report is submitted.
package store
