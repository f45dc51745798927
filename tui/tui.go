// Package tui renders the command line output of the cellular tools.
package tui

import (
	"os"

	"github.com/mattn/go-isatty"
)

// HasTTY is false when stdout is piped, which turns spinners off.
var HasTTY = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
