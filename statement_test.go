package main

import (
	"errors"
	"strings"
	"testing"

	"bptable/table"
)

func TestPrepareInsertValid(t *testing.T) {
	var stmt Statement
	if err := prepareStatement("insert 1 user1 e@x", &stmt); err != nil {
		t.Fatalf("prepareStatement: %v", err)
	}
	if stmt.Type != StatementInsert {
		t.Fatalf("Type = %v, want StatementInsert", stmt.Type)
	}
	if stmt.Key != 1 || stmt.Record.Username != "user1" || stmt.Record.Email != "e@x" {
		t.Fatalf("unexpected statement: %+v", stmt)
	}
}

func TestPrepareSelect(t *testing.T) {
	var stmt Statement
	if err := prepareStatement("select", &stmt); err != nil {
		t.Fatalf("prepareStatement: %v", err)
	}
	if stmt.Type != StatementSelect {
		t.Fatalf("Type = %v, want StatementSelect", stmt.Type)
	}
}

func TestPrepareInsertNegativeID(t *testing.T) {
	var stmt Statement
	err := prepareStatement("insert -1 user1 e@x", &stmt)
	if !errors.Is(err, ErrNegativeID) {
		t.Fatalf("err = %v, want ErrNegativeID", err)
	}
}

func TestPrepareInsertIDTooBig(t *testing.T) {
	var stmt Statement
	err := prepareStatement("insert 4294967296 user1 e@x", &stmt)
	if !errors.Is(err, ErrIDTooBig) {
		t.Fatalf("err = %v, want ErrIDTooBig", err)
	}
}

func TestPrepareInsertStringTooLong(t *testing.T) {
	var stmt Statement
	longUsername := strings.Repeat("a", table.MaxUsernameLen+1)
	err := prepareStatement("insert 1 "+longUsername+" e@x", &stmt)
	if !errors.Is(err, table.ErrStringTooLong) {
		t.Fatalf("err = %v, want ErrStringTooLong", err)
	}
}

func TestPrepareUnrecognizedStatement(t *testing.T) {
	var stmt Statement
	if err := prepareStatement("nonsense", &stmt); err == nil {
		t.Fatalf("expected error for unrecognized statement")
	}
}

func TestHandleMetaCommand(t *testing.T) {
	if handleMetaCommand(".exit") != MetaCommandSuccess {
		t.Errorf("expected MetaCommandSuccess for .exit")
	}
	if handleMetaCommand(".bogus") != MetaCommandUnrecognizedCommand {
		t.Errorf("expected MetaCommandUnrecognizedCommand for .bogus")
	}
}
