// Package audio handles audio encoding for exam responses.
// It implements PCM-16 to RIFF/WAVE encoding and decoding, container
// validation, and synthesis of silent placeholder clips used to record
// an explicit "no response" answer.
package audio
