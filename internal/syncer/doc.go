// Package syncer wires the stages of a sync run together.
//
// A run is strictly sequential apart from the download stage:
//
//	scan -> reconcile -> download -> install
//
// Clean stops after reconcile.
package syncer
