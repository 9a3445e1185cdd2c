// Package synchronizer implements the multi-timeline synchronization engine.
//
// The engine reads N independent frame and matrix timelines and, on every
// call to TrySynchronize, produces one temporally consistent snapshot:
//
//  1. every bound, non-empty input contributes candidate = newest - inputDelay
//  2. the reference timestamp is the minimum candidate (PolicyMinimum) or the
//     minimum of the candidates lying within tolerance of the newest one
//     (PolicyToleranceWindow)
//  3. a reference that does not advance past the watermark is skipped
//  4. every bound output receives the sample nearest to
//     reference + inputDelay + outputDelay when it lies within tolerance
//
// Per-output synchronized/unsynchronized events are emitted on transitions
// only, followed by a single synchronization_done event.
//
// The engine performs no locking and no blocking: callers must serialize
// calls. The service package provides a serialized two-phase driver.
package synchronizer
