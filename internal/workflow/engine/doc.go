// Package engine executes configured workflow pipelines over external
// entities: lazy pipeline assignment, guarded transitions with permission
// checks, an append-only state log written atomically with the state pointer
// update, and deferred side-effect dispatch.
package engine
