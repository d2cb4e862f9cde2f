// Package observability builds the structured zap logger shared by the
// gateway and its CLI.
package observability
