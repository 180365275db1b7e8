package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"bptable/table"
)

func main() {
	var dbPathArg string
	if len(os.Args) > 1 {
		dbPathArg = os.Args[1]
	}

	cfg, err := loadConfig(dbPathArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tb, err := table.Open(cfg.DBPath, table.WithLogger(logger), table.WithInternalMaxCells(cfg.InternalMaxCells))
	if err != nil {
		// Fatal per spec: I/O failure or a corrupt-file length on open is
		// not recoverable here.
		logger.Fatal("open table", zap.String("path", cfg.DBPath), zap.Error(err))
	}

	historyPath := filepath.Join(os.TempDir(), ".bptable_history")
	rl, err := newPrompt(historyPath)
	if err != nil {
		logger.Fatal("open prompt", zap.Error(err))
	}
	defer rl.Close()

	runRepl(rl, tb, logger)
}

func runRepl(rl promptReader, tb *table.Table, logger *zap.Logger) {
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) {
				closeOrFatal(tb, logger)
				return
			}
			logger.Fatal("read input", zap.Error(err))
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			switch handleMetaCommand(line) {
			case MetaCommandSuccess:
				closeOrFatal(tb, logger)
				return
			case MetaCommandUnrecognizedCommand:
				fmt.Printf("Unrecognized command %q.\n", line)
			}
			continue
		}

		var stmt Statement
		if err := prepareStatement(line, &stmt); err != nil {
			fmt.Println("Error:", err)
			continue
		}

		executeStatement(&stmt, tb, logger)
	}
}

// promptReader is the subset of *readline.Instance runRepl depends on, so
// tests can drive the loop with a stub.
type promptReader interface {
	Readline() (string, error)
}

func executeStatement(stmt *Statement, tb *table.Table, logger *zap.Logger) {
	switch stmt.Type {
	case StatementInsert:
		err := tb.Insert(stmt.Key, stmt.Record)
		switch {
		case err == nil:
			fmt.Println("Executed.")
		case errors.Is(err, table.ErrDuplicateKey):
			fmt.Println("Error: Duplicate key.")
		case errors.Is(err, table.ErrTreeFull):
			fmt.Println("Error: Tree full.")
		default:
			logger.Fatal("insert", zap.Uint32("key", stmt.Key), zap.Error(err))
		}

	case StatementSelect:
		rows, err := tb.Scan()
		if err != nil {
			logger.Fatal("scan", zap.Error(err))
		}
		for _, r := range rows {
			fmt.Printf("(%d, %s, %s)\n", r.ID, r.Username, r.Email)
		}
		fmt.Println("Executed.")
	}
}

func closeOrFatal(tb *table.Table, logger *zap.Logger) {
	if err := tb.Close(); err != nil {
		logger.Fatal("close table", zap.Error(err))
	}
}
