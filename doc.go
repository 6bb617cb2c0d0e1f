/*
Package stepwise is an editor-sandbox synchronisation and checkpoint grading engine for interactive coding lessons.

A lesson is an ordered list of steps. Each step carries a set of files, optional npm dependencies, Markdown
instructions and checkpoints. A learner edits the files; Stepwise keeps the editor model, the sandbox that runs
the code and the persisted modules in sync, and advances checkpoints as they pass.

# Concept

Every session runs as a cooperative loop. Keystrokes, debounce timers and sandbox messages are handled one at a
time under the session lock, so grading and synchronisation never race. Navigating to another step bumps an epoch
that silences every timer still pending for the old step.

Checkpoints come in two kinds:

  - Regex checkpoints pass when their pattern (ECMAScript syntax, /body/flags) matches the edited text.
  - Executed checkpoints pass when the sandbox reports a passing run of their test file.

# Key Features

  - Debounced sandbox sync and module writes with stale-callback suppression.
  - At most one grading run in flight per step, correlated by run ID.
  - Optimistic checkpoint passes confirmed in the background with retries.
  - Inline code suggestions and hover explanations from an external completion service.
  - Pluggable lessons (Loam Markdown, memory), progress stores (memory, Redis) and transports (HTTP, WebSocket, MCP).

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/stepwise"
	)

	func main() {
		// Lessons are Markdown documents under ./lessons.
		eng, err := stepwise.New("./lessons")
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		sess, err := eng.Open(ctx, "learner-1", "intro")
		if err != nil {
			log.Fatal(err)
		}
		defer eng.Close(ctx, "learner-1")

		view, err := sess.Edit(ctx, "/index.js", "let helloWorld = 1;")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println("complete:", view.Complete)
	}
*/
package stepwise
