// Package errclass maps arbitrary scan and warehouse failures into a small
// taxonomy with a retryable verdict. Classification is pattern-based over the
// error text; it holds no state.
package errclass

import (
	"strings"
)

type Kind string

const (
	ConnectionRefused Kind = "CONNECTION_REFUSED"
	ConnectionTimeout Kind = "CONNECTION_TIMEOUT"
	AuthInvalid       Kind = "AUTH_INVALID"
	QuerySyntax       Kind = "QUERY_SYNTAX"
	QueryPermission   Kind = "QUERY_PERMISSION"
	DataNotFound      Kind = "DATA_NOT_FOUND"
	ValidationError   Kind = "VALIDATION_ERROR"
	InternalError     Kind = "INTERNAL_ERROR"
)

// Classification is the verdict for a single failure.
type Classification struct {
	Kind        Kind
	Retryable   bool
	UserMessage string
}

// rule order matters: the first match wins, so the more specific
// auth/permission patterns sit above the generic connection ones.
var rules = []struct {
	substrings []string
	kind       Kind
	retryable  bool
	message    string
}{
	{[]string{"invalid credential", "authentication failed", "password authentication", "invalid password", "access token expired"},
		AuthInvalid, false, "Authentication with the warehouse failed. Check the connection credentials."},
	{[]string{"permission denied", "insufficient privilege", "not authorized"},
		QueryPermission, false, "The connection user lacks permission for this table."},
	{[]string{"syntax error", "parse error", "invalid sql"},
		QuerySyntax, false, "The generated query was rejected by the warehouse."},
	{[]string{"does not exist", "not found", "unknown table", "unknown schema", "no such table"},
		DataNotFound, false, "The target table or schema could not be found."},
	{[]string{"validation", "invalid argument", "invalid parameter"},
		ValidationError, false, "The request was invalid."},
	{[]string{"connection refused", "connection reset", "broken pipe", "no such host", "network is unreachable", "eof"},
		ConnectionRefused, true, "Could not reach the warehouse. It will be retried."},
	{[]string{"timeout", "timed out", "deadline exceeded", "context canceled"},
		ConnectionTimeout, true, "The warehouse did not respond in time. It will be retried."},
}

// Classify inspects err and returns its kind and whether re-attempting is
// safe. Unrecognized errors default to a retryable internal error so a masked
// infrastructure blip does not become a spurious permanent failure.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: InternalError, Retryable: false, UserMessage: ""}
	}

	msg := strings.ToLower(err.Error())
	for _, r := range rules {
		for _, s := range r.substrings {
			if strings.Contains(msg, s) {
				return Classification{Kind: r.kind, Retryable: r.retryable, UserMessage: r.message}
			}
		}
	}

	return Classification{
		Kind:        InternalError,
		Retryable:   true,
		UserMessage: "An unexpected error occurred. It will be retried.",
	}
}

// Retryable is a shorthand for Classify(err).Retryable.
func Retryable(err error) bool {
	return Classify(err).Retryable
}
