// Package api implements the HTTP client for the exam backend.
// It covers session creation, question sequencing, multipart response
// upload, progress queries, and report submission, and classifies every
// failure as a transport, server, or data error.
package api
