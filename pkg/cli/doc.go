// Package cli implements the portage command line interface: exporting
// and importing user snapshots, migrating between backends, and probing
// backend reachability.
package cli
