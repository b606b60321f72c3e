// Package store keeps the dashboard's per-board state and fans updates out
// to subscribers.
//
// Each board holds the latest [BoardState] of its newest polling lifecycle.
// [MemoryStore.Update] rejects states from an older generation, so a
// superseded lifecycle can never overwrite the strategies of its successor.
package store
