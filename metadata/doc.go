// Package metadata maintains inverted indexes over selected payload fields
// and turns exact-match filters into candidate id sets.
package metadata
