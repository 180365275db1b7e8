package main

import (
	"github.com/chzyer/readline"
)

// newPrompt opens a readline instance at the standard "db > " prompt, with
// history kept in historyPath for the session.
func newPrompt(historyPath string) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          "db > ",
		HistoryFile:     historyPath,
		InterruptPrompt: "^C",
		EOFPrompt:       ".exit",
	})
}
