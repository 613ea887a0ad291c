// Policyhub is an observable registry of policy activation states.
//
// It keeps a mapping from policy id to mode (disabled, readonly or full),
// serves it over HTTP, streams every change to subscribers as server-sent
// events, seeds it from YAML files and records changes in a journal.
//
// Usage:
//
//	# Start the server with defaults
//	policyhub run
//
//	# Start with a configuration file
//	policyhub run --config /etc/policyhub/config.yaml
//
//	# Check configuration and seed files
//	policyhub validate --config config.yaml
//
//	# Print the seed file JSON schema
//	policyhub schema
//
//	# Show recent changes
//	policyhub journal list --policy github
package main

func main() {
	Execute()
}
