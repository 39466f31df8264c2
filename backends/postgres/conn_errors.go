package postgres

// connErrorStrings contains string patterns used to identify connectivity-related errors
// in PostgreSQL connections. These patterns separate an unreachable store from
// SQL errors such as syntax errors or constraint violations.
//
// The patterns are matched against the lowercase version of error messages using
// string containment. Users can override them with Config.ConnErrorStrings.
var connErrorStrings = []string{
	"connection refused",
	"connection timeout",
	"connection reset",
	"network is unreachable",
	"no such host",
	"i/o timeout",
	"broken pipe",
	"pool exhausted",
	"closed pool",
	"too many connections",
	"terminating connection",
	"failed to connect",
}
