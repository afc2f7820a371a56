package display

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotInteractive is returned when a confirmation is needed but input is not a terminal
var ErrNotInteractive = errors.New("confirmation required but input is not a terminal; pass --yes to proceed")

// confirm prints question and reads a y/n answer from input. An empty
// answer means no.
func confirm(writer io.Writer, input *os.File, question string, isTerminal func(int) bool) (bool, error) {
	if input == nil || !isTerminal(int(input.Fd())) {
		return false, ErrNotInteractive
	}

	reader := bufio.NewReader(input)
	for {
		fmt.Fprintf(writer, "%s [y/N]: ", question)
		answer, err := reader.ReadString('\n')
		if err != nil && answer == "" {
			return false, fmt.Errorf("failed to read input: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		fmt.Fprintln(writer, "Please answer y or n.")
	}
}

func stdinIsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}
