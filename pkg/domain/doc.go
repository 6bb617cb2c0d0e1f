/*
Package domain contains the core domain models of the stepwise lesson engine.

It defines the lesson entities (Lesson, Step, FileEntry, Checkpoint), the typed messages
exchanged with the sandbox, and the read models handed to clients. This package is kept
pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Step: One lesson unit with files, dependencies, instructions and checkpoints.
  - Checkpoint: A gating condition, evaluated by regex match or by an executed test result.
  - EditorMessage / PreviewMessage: The wire shapes exchanged with the sandbox.
  - Inbound: The validated, tagged result of decoding a sandbox message.
  - View: A snapshot of a learner session, rendered by adapters.
*/
package domain
