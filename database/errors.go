package database

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	pmysql "github.com/pingcap/parser/mysql"
)

// ErrTransactionLost is returned when a reconnect happened while a
// multi-statement transaction was open; its statements are gone.
var ErrTransactionLost = errors.New("connection lost inside an open transaction")

// ErrorCode returns the server error number carried by err, or 0.
func ErrorCode(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// IsServerError reports whether err came back from the server, as opposed
// to a client or network failure.
func IsServerError(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me)
}

// IsLockError reports lock wait timeouts and deadlocks.
func IsLockError(err error) bool {
	switch ErrorCode(err) {
	case pmysql.ErrLockWaitTimeout, pmysql.ErrLockDeadlock:
		return true
	}
	return false
}

// IsTableExists reports "table already exists".
func IsTableExists(err error) bool {
	return ErrorCode(err) == pmysql.ErrTableExists
}

// IsUnknownTable reports errors raised when the table is not there.
func IsUnknownTable(err error) bool {
	switch ErrorCode(err) {
	case pmysql.ErrBadTable, pmysql.ErrNoSuchTable:
		return true
	}
	return false
}
