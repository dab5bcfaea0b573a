// Package exam implements the exam session controller.
// It sequences instrument questions with resumable history, coordinates
// user navigation against in-flight recording and upload state, uploads
// responses, and triggers report submission on completion. All state lives
// on the Controller and is serialized by it; collaborators receive handles,
// never globals.
package exam
