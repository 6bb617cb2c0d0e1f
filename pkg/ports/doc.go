/*
Package ports defines the driven ports (interfaces) for the stepwise engine.

These interfaces decouple the editor session from external implementations, allowing
the engine to run against various sandboxes, persistence backends and completion services.

# Key Interfaces

  - Sandbox: Receives editor messages for execution (e.g., a WebSocket-connected preview).
  - Persistence: The bridge that records module edits and checkpoint mutations.
  - Completer: The AI completion and explanation service.
  - DependencyResolver: Resolves a package version into virtual files.
  - LessonLoader: Responsible for loading Lesson definitions (e.g., from Loam or Memory).
  - ProgressStore: Responsible for persisting and loading learner Progress.
  - DistributedLocker: Provides distributed locking for handling concurrent session access.

Adapters should run RunProgressStoreContract and RunLessonLoaderContract in their tests.
*/
package ports
