// Package presence tracks which card readers are currently online.
//
// Readers announce themselves on online/{id} and offline/{id}. The tracker
// keeps the set of online ids in first-seen order, in memory only; it starts
// empty on every process start.
package presence
