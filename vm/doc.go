// Package vm implements the runtime that compiled BASIC programs call into.
//
// This package contains:
//   - Text output with pen/paper color spans (or plain text in terminal mode)
//   - The vector graphics engine producing SVG
//   - RSX command dispatch with typed argument checking
//   - AFTER/EVERY timers fired at frame boundaries
//   - Keyboard buffer, DATA cursor, number formatting
//   - The goja binding that exposes all of it as the script's "o" object
//
// A VM is driven from a single goroutine. Only the keyboard buffer and the
// stop request may be touched from other goroutines.
package vm
