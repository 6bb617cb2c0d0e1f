package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionClosed is returned when an operation targets a session that was closed.
var ErrSessionClosed = errors.New("session closed")

// ErrStepNotFound is returned when a step index or ID does not exist in the lesson.
var ErrStepNotFound = errors.New("step not found")

// ErrStepIncomplete is returned when advancing past a step whose checkpoints are still pending.
var ErrStepIncomplete = errors.New("step not complete")

// ErrFileExists is returned when creating a file whose path is already taken in the step.
var ErrFileExists = errors.New("file already exists")

// ErrFileNotFound is returned when a path does not exist in the workspace.
var ErrFileNotFound = errors.New("file not found")

// ErrNotMounted is returned by sandbox endpoints when no sandbox is attached to receive messages.
var ErrNotMounted = errors.New("sandbox not mounted")

// ErrMalformedMessage wraps every decoding failure of a sandbox message.
var ErrMalformedMessage = errors.New("malformed sandbox message")

// ErrLessonNotFound is returned when a lesson ID cannot be resolved by the loader.
var ErrLessonNotFound = errors.New("lesson not found")
