package cli

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// readLine reads one trimmed line from the command's stdin. A final line
// without a newline still counts.
func readLine(cmd *cobra.Command) (string, error) {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question; anything but y or yes is a no.
func confirm(cmd *cobra.Command, prompt string) bool {
	printer.Printf("%s [y/N] ", prompt)
	answer, err := readLine(cmd)
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}
