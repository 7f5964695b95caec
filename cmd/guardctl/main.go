package main

import (
	"fmt"
	"io"
	"os"
)

const defaultConfig = "./guard.toml"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		usage(out)
		return fmt.Errorf("command required")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(args[1:], out)
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "guardctl <command> [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(out, "  %-16s %s\n", name, commands[name].help)
	}
}
