// Package gatt provides per-peripheral session management for the Bluetooth
// Low Energy GATT central role.
//
// A Session owns one remote peripheral's connection lifecycle and correlates
// asynchronous operations with their stack-level completions:
//   - Connection state machine with close-before-mark-disconnected cleanup
//   - Wholesale service/characteristic catalog replacement on discovery
//   - One in-flight request per (operation kind, characteristic) slot with an
//     explicit overwrite-then-fail policy
//   - Serialized notification dispatch to a settable sink
//   - Best-effort connected/disconnected lifecycle events
//
// The radio stack is abstracted behind the Transport/Conn/Callbacks contract;
// package goble supplies the production implementation.
package gatt
