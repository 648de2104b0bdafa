// Package inventory lists what a target directory currently holds.
//
// Scan only looks at the top level. Regular files are collected by name;
// directories, symlinks and the ".old" archive subfolder are never part of
// an inventory, so later stages cannot archive or delete them.
package inventory
