// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - TextRecordSource: Supplies validated text records from acquisition
//   - Normaliser / NormaliserChain: Deterministic text normalisation
//   - PostProcessor / PostProcessorPipeline: Chunk production per record
//   - ChunkSetStore: ChunkSet persistence
//   - EmbeddingService: The pluggable text -> vector function
//   - CollectionStore: Staged workspaces, promotion and promoted collections
//   - VectorIndex: Exact similarity search over one collection
//   - QuerySetLoader / RunStore: Frozen query sets and evaluation output
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the build degrades gracefully:
//
//   - BuildMetrics: Prometheus counters written next to the workspace.
//   - BuildEventPublisher: Lifecycle events on a message bus.
//   - CollectionMirror: Copies promoted collections to an external vector database.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
