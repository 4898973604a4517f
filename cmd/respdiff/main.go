// Command respdiff runs the two phases of the differential testing
// pipeline: transceive (send queries, record answers) and diff-answers
// (compare recordings, write a JSON report). Subcommand dispatch uses a
// plain flag.FlagSet per subcommand rather than a CLI framework.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: respdiff <transceive|diff-answers> [flags]")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "transceive":
		return runTransceive(ctx, args[1:])
	case "diff-answers":
		return runDiffAnswers(ctx, args[1:])
	default:
		return fmt.Errorf("unknown subcommand %q (want transceive or diff-answers)", args[0])
	}
}
