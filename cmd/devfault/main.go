// devfault provisions ephemeral virtual block devices: sparse-file or
// tmpfs-backed, exposed via loop devices, optionally formatted and mounted,
// optionally layered with a device-mapper table that fails I/O on chosen
// block ranges. Devices live until the operator releases them, then
// everything is torn down best-effort.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"
)

var parser = flags.NewParser(nil, flags.Default)

func mustAddCmd(command, shortDesc, longDesc string, data interface{}) *flags.Command {
	cmd, err := parser.AddCommand(command, shortDesc, longDesc, data)
	if err != nil {
		panic(err)
	}
	return cmd
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			// parse errors were already printed by the parser
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "devfault: %s\n", err)
		os.Exit(1)
	}
}
