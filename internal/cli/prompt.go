package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptForDirectory asks for the folder holding the EC 8A result sheet
// photos when form-extract is started without --directory. An empty answer
// selects the current directory, and a leading "~" is expanded to the home
// directory so paths copied from a shell work as typed.
func PromptForDirectory() string {
	return promptForDirectory(os.Stdin, os.Stdout)
}

func promptForDirectory(in io.Reader, out io.Writer) string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	fmt.Fprintf(out, "Folder of EC 8A form images [%s]: ", cwd)

	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && input == "" {
		log.Warn().Err(err).Msg("No directory entered, scanning the current directory")
		return cwd
	}

	input = strings.Trim(strings.TrimSpace(input), `"'`)
	if input == "" {
		return cwd
	}
	return expandHome(input)
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		log.Warn().Err(err).Str("path", p).Msg("Cannot resolve home directory, using path as entered")
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
