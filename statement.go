package main

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"bptable/table"
)

type StatementType int

const (
	StatementInsert StatementType = iota
	StatementSelect
)

type Statement struct {
	Type   StatementType
	Key    uint32
	Record table.Record
}

// ErrNegativeID and ErrIDTooBig are the id-bounds outcomes the insert
// parser can surface; a record's id must fit in a u32.
var (
	ErrNegativeID = errors.New("id must not be negative")
	ErrIDTooBig   = errors.New("id does not fit in a u32")
	ErrSyntax     = errors.New("syntax error")
)

// prepareStatement parses one REPL input line into stmt.
func prepareStatement(input string, stmt *Statement) error {
	switch {
	case strings.HasPrefix(input, "insert"):
		return prepareInsert(input, stmt)
	case input == "select":
		stmt.Type = StatementSelect
		return nil
	default:
		return errors.Wrapf(ErrSyntax, "unrecognized keyword at start of %q", input)
	}
}

func prepareInsert(input string, stmt *Statement) error {
	fields := strings.Fields(input)
	if len(fields) != 4 {
		return errors.Wrapf(ErrSyntax, "usage: insert <id> <username> <email>")
	}

	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return errors.Wrap(ErrSyntax, "id must be an integer")
	}
	if id < 0 {
		return ErrNegativeID
	}
	if id > math.MaxUint32 {
		return ErrIDTooBig
	}

	username, email := fields[2], fields[3]
	if len(username) > table.MaxUsernameLen {
		return errors.Wrapf(table.ErrStringTooLong, "username %q", username)
	}
	if len(email) > table.MaxEmailLen {
		return errors.Wrapf(table.ErrStringTooLong, "email %q", email)
	}

	stmt.Type = StatementInsert
	stmt.Key = uint32(id)
	stmt.Record = table.Record{ID: uint32(id), Username: username, Email: email}
	return nil
}
