// Package input turns button presses into serialized actions.
//
// Two stages are decoupled by a bounded queue:
//
//	Debouncer (polls pins, never blocks) --> Queue (depth 10, drop newest) --> Worker
//
// The Debouncer emits one Event per press after StableReads consecutive low
// reads; the line must read high again before the next press counts. The
// Worker runs every action on one goroutine in FIFO order, so slow work
// (storage, publishing, reboot) never stalls button polling. Other
// components hand blocking work to the Worker with Submit.
package input
