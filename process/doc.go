// Package process contains the event-sourced state of a single process
// instance, as managed by the process index.
//
// It deliberately implements only what the index needs to journal, replay and
// report an instance. Recipe firing rules are not evaluated here.
package process
