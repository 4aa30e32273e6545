package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ergochat/readline"

	penne "github.com/InsightCenterNoodles/Penne"
	"github.com/InsightCenterNoodles/Penne/nooid"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("connect"),
	readline.PcItem("methods"),
	readline.PcItem("invoke"),
	readline.PcItem("state"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

const help = `Commands:
  connect <ws://host:port>   open a session
  methods                    list callable server methods
  state                      list mirrored components
  invoke <name> [json args]  call a method, e.g. invoke new_point [1,2,3]
  exit | quit
`

type repl struct {
	client *penne.Client
	rl     *readline.Instance
}

func (r *repl) open() (err error) {
	r.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".penne_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	r.rl.CaptureExitSignal()
	return
}

func (r *repl) connect(addr string) error {
	if r.client != nil {
		_ = r.client.Shutdown()
	}
	client, err := penne.Connect(context.Background(), addr, penne.Options{
		OnConnected: func() {
			fmt.Fprintf(os.Stderr, "session established with %s\n", addr)
		},
	})
	if err != nil {
		return err
	}
	r.client = client
	go func() {
		_ = client.ProcessCallbacks(context.Background())
	}()
	return nil
}

func (r *repl) invoke(line string) error {
	if r.client == nil {
		return errors.New("not connected")
	}
	name, rest, _ := strings.Cut(line, " ")
	if name == "" {
		return errors.New("usage: invoke <name> [json args]")
	}
	var args []any
	if rest = strings.TrimSpace(rest); rest != "" {
		if err := json.Unmarshal([]byte(rest), &args); err != nil {
			return fmt.Errorf("bad args: %w", err)
		}
	}
	_, err := r.client.Invoke(name, args, nil, func(result any, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
			return
		}
		fmt.Fprintf(os.Stderr, "%s -> %v\n", name, result)
	})
	return err
}

func (r *repl) showState() {
	if r.client == nil {
		fmt.Fprintln(os.Stderr, "not connected")
		return
	}
	r.client.State().Range(func(id nooid.ID, d penne.Delegate) bool {
		fmt.Fprintf(os.Stderr, "%s\t%s\n", id, d.Name())
		return true
	})
}

func main() {
	r := &repl{}
	if err := r.open(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer r.rl.Close()

	if len(os.Args) > 1 {
		if err := r.connect(os.Args[1]); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
		}
	}

	for {
		line, err := r.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		}

		cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
		rest = strings.TrimSpace(rest)
		switch cmd {
		case "":
		case "help":
			fmt.Fprint(os.Stderr, help)
		case "connect":
			if err := r.connect(rest); err != nil {
				fmt.Fprintln(os.Stderr, err.Error())
			}
		case "methods":
			if r.client == nil {
				fmt.Fprintln(os.Stderr, "not connected")
				break
			}
			r.client.ShowMethods(os.Stderr)
		case "state":
			r.showState()
		case "invoke":
			if err := r.invoke(rest); err != nil {
				fmt.Fprintln(os.Stderr, err.Error())
			}
		case "exit", "quit":
			if r.client != nil {
				_ = r.client.Shutdown()
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q, try help\n", cmd)
		}
	}

	if r.client != nil {
		_ = r.client.Shutdown()
	}
}
