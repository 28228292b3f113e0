package internal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type commandKind int

const (
	cmdSay commandKind = iota
	cmdQuit
	cmdHelp
	cmdJoin
	cmdEdit
	cmdDelete
	cmdReact
	cmdPin
	cmdUpload
	cmdTo
)

// command is one parsed line of chat input.
type command struct {
	kind  commandKind
	index int
	arg   string
}

const helpText = "/join <room> • /edit <n> <text> • /delete <n> • /react <n> <emoji> • /pin <n> • /upload [path] • /to <user> (empty clears) • /quit"

// parseCommand turns an input line into a command. Message numbers are the
// 1-based positions shown next to each message.
func parseCommand(line string) (command, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return command{kind: cmdSay, arg: trimmed}, nil
	}
	name, rest, _ := strings.Cut(trimmed, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "/quit", "/exit":
		return command{kind: cmdQuit}, nil
	case "/help":
		return command{kind: cmdHelp}, nil
	case "/join":
		if rest == "" {
			return command{}, errors.New("usage: /join <room>")
		}
		return command{kind: cmdJoin, arg: rest}, nil
	case "/to":
		return command{kind: cmdTo, arg: rest}, nil
	case "/upload":
		return command{kind: cmdUpload, arg: rest}, nil
	case "/edit":
		return indexed(cmdEdit, rest, true, "usage: /edit <n> <new text>")
	case "/react":
		return indexed(cmdReact, rest, true, "usage: /react <n> <emoji>")
	case "/delete":
		return indexed(cmdDelete, rest, false, "usage: /delete <n>")
	case "/pin":
		return indexed(cmdPin, rest, false, "usage: /pin <n>")
	default:
		return command{}, fmt.Errorf("unknown command %s, try /help", name)
	}
}

func indexed(kind commandKind, rest string, needsArg bool, usage string) (command, error) {
	num, arg, _ := strings.Cut(rest, " ")
	index, err := strconv.Atoi(num)
	if err != nil || index < 1 {
		return command{}, errors.New(usage)
	}
	arg = strings.TrimSpace(arg)
	if needsArg && arg == "" {
		return command{}, errors.New(usage)
	}
	return command{kind: kind, index: index, arg: arg}, nil
}
