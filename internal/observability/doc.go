// Package observability builds the process logger and carries request
// scoped fields (request ID, project) through context.
package observability
