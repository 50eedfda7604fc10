// Package availability adapts remote "is this value available" checks into
// formguard async rules.
//
// A rule built here, per invocation:
//
//  1. passes empty values without calling the check,
//  2. passes when its gate (WithGate) is closed,
//  3. extracts and normalizes the value (trimmed and lower-cased by default);
//     a value that normalizes to nothing passes like an empty one,
//  4. waits a debounce interval (300ms by default); a newer value cancels the wait,
//  5. calls the check and maps the answer to taken/notFound,
//  6. fails closed when the check errors or panics.
//
// Supersession is driven by the field: every new value cancels the context of
// the previous run, and results of cancelled runs are dropped.
package availability
