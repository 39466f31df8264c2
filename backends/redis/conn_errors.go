package redis

// connErrorStrings contains string patterns used to identify connectivity-related errors
// in Redis connections. These patterns separate an unreachable store (which
// the gate answers with its fail policy) from operational errors such as
// "WRONGTYPE" or "NOSCRIPT".
//
// The patterns are matched against the lowercase version of error messages using
// string containment. Users can override them with Config.ConnErrorStrings.
var connErrorStrings = []string{
	"connection refused",
	"connection timeout",
	"connection reset",
	"network is unreachable",
	"no such host",
	"timeout",
	"i/o timeout",
	"broken pipe",
	"connection pool exhausted",
	"client is closed",
	"eof",
	"loading redis is loading",
}
