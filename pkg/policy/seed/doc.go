// Package seed loads initial policy states from YAML files and keeps the
// registry in step with them.
//
// A seed file looks like:
//
//	policies:
//	  policyA:
//	    mode: full
//	  policyB:
//	    mode: readonly
//
// Files are selected with doublestar patterns such as "policies/**/*.yaml",
// validated against the schema returned by Schema, and merged in path order.
// A Seeder writes the merged result into a registry; a Watcher re-runs the
// seeder when matching files change.
package seed
