/*
Package ports defines the driven ports (interfaces) of mqlua.

These interfaces decouple the node subsystem from external implementations, allowing
programs to be loaded from different backends and housekeeping events to be routed
to any consumer.

# Key Interfaces

  - ProgramSource: Responsible for fetching node programs (e.g., from the filesystem or Redis).
  - EventPublisher: Receives NodeStarting and NodeTerminated events.
*/
package ports
