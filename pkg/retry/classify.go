// Package retry classifies storage and LLM errors as transient or
// permanent and retries transient failures with exponential backoff.
package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"regexp"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// SQLSTATE classes. The first two characters of a SQLSTATE identify the
// error class; connection failures (08), transaction rollbacks including
// deadlocks (40), insufficient resources (53), and operator intervention
// (57) are worth retrying, while integrity violations (23) and syntax or
// access errors (42) never are.
var (
	transientStateClasses = map[string]bool{
		"08": true,
		"40": true,
		"53": true,
		"57": true,
	}
	permanentStateClasses = map[string]bool{
		"23": true,
		"42": true,
	}
)

// transientMessage matches error text emitted by drivers and pools for
// conditions that resolve on their own. Matching is whole-string substring,
// case-insensitive; no stemming.
var transientMessage = regexp.MustCompile(`(?i)(` +
	`connection (refused|reset|closed|timed out)` +
	`|pool exhausted` +
	`|deadlock detected` +
	`|serialization failure` +
	`|server (is )?(shutting down|shutdown|restarting|restart)` +
	`|out of (memory|disk)` +
	`|try again` +
	`|temporarily unavailable` +
	`)`)

type verdict int

const (
	verdictUnknown verdict = iota
	verdictTransient
	verdictPermanent
)

// mysql server error numbers that surface without a useful SQLSTATE.
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrLockDeadlock    = 1213
)

// IsTransient reports whether err represents a failure worth retrying.
//
// Cancellation is never transient. Otherwise the whole unwrap chain is
// walked; an error is transient when it declares itself so (a
// `Transient() bool` method or a net timeout), when its SQLSTATE belongs to
// a transient class, or when its message matches the transient patterns.
// A SQLSTATE in an explicitly permanent class (23, 42) settles the verdict
// for good, regardless of message text.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	for err != nil {
		switch classifyOne(err) {
		case verdictTransient:
			return true
		case verdictPermanent:
			return false
		}

		switch x := err.(type) {
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		case interface{ Unwrap() []error }:
			for _, joined := range x.Unwrap() {
				if IsTransient(joined) {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
	return false
}

// classifyOne inspects a single error, ignoring anything it wraps.
func classifyOne(err error) verdict {
	if m, ok := err.(interface{ Transient() bool }); ok && m.Transient() {
		return verdictTransient
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return verdictTransient
	}

	if state, ok := sqlStateOf(err); ok {
		if v := classifySQLState(state); v != verdictUnknown {
			return v
		}
	}

	if se, ok := err.(sqlite3.Error); ok {
		if se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked {
			return verdictTransient
		}
	}
	if me, ok := err.(*mysql.MySQLError); ok {
		if me.Number == mysqlErrLockWaitTimeout || me.Number == mysqlErrLockDeadlock {
			return verdictTransient
		}
	}

	if transientMessage.MatchString(err.Error()) {
		return verdictTransient
	}
	return verdictUnknown
}

// sqlStateOf extracts a SQLSTATE from driver error types.
func sqlStateOf(err error) (string, bool) {
	if pqErr, ok := err.(*pq.Error); ok {
		return string(pqErr.Code), true
	}
	if myErr, ok := err.(*mysql.MySQLError); ok {
		state := string(myErr.SQLState[:])
		if state == "" || state[0] == 0 {
			return "", false
		}
		return state, true
	}
	if s, ok := err.(interface{ SQLState() string }); ok {
		return s.SQLState(), true
	}
	return "", false
}

func classifySQLState(state string) verdict {
	if len(state) < 2 {
		return verdictUnknown
	}
	class := state[:2]
	if transientStateClasses[class] {
		return verdictTransient
	}
	if permanentStateClasses[class] {
		return verdictPermanent
	}
	return verdictUnknown
}
