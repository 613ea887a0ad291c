// Package handlers implements the policyhub HTTP API.
//
// Routes use method-qualified http.ServeMux patterns:
//
//	GET    /v1/policies            current snapshot
//	GET    /v1/policies/stream     server-sent snapshot events
//	GET    /v1/policies/{id}       one policy state
//	PUT    /v1/policies/{id}       set a policy state
//	PATCH  /v1/policies/{id}       merge a patch into an existing state
//	DELETE /v1/policies/{id}       remove a policy
//	GET    /v1/templates           template catalog
//	GET    /v1/templates/{id}      one template
//	GET    /v1/journal             recent recorded changes
//	GET    /health, /ready         liveness and readiness
//
// Errors use the envelope from package types.
package handlers
