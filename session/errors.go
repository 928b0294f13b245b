package session

import "errors"

var (
	// ErrNoSession is returned when an account has no session in the pool.
	ErrNoSession = errors.New("no session for account")

	// ErrAuthRequired is returned when a session connects at the transport
	// level but the account needs to be re-authorized by an operator.
	ErrAuthRequired = errors.New("account requires re-authorization")
)
