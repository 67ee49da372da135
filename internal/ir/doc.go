// Package ir provides the normalized value model used to derive cache keys.
//
// Arbitrary Go argument values are normalized into a sealed set of IR types
// and serialized into a structure-preserving envelope. ir imports nothing
// internal; every other internal package that needs stable identity for a
// value goes through it.
//
// Key design constraints:
//   - Object keys are always emitted in sorted order (UTF-16 code units)
//   - Array order is significant and never changed
//   - Values JSON cannot express (undefined, dates, bytes, big integers,
//     NaN/Infinity, non-string map keys) are tagged, never flattened
//   - Pure: no clock, no randomness, no process state
package ir
