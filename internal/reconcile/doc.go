// Package reconcile brings a target directory in line with a desired set of
// artifacts and overrides.
//
// Reconcile narrows the desired set down to what is missing and clears out
// everything else. Unexpected files are moved into the archive subfolder so
// an operator can recover them. Partial transfers left by an interrupted run
// are deleted instead, as is any file whose archive slot is already taken.
package reconcile
