// Command prefix is a line plugin: it reads one JSON line per progress line
// on stdin and answers with the same line, its text prefixed by the first
// argument.
package main

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/quix-labs/incremental-writer/internals/types"
)

func main() {
	prefix := "[plugin] "
	if len(os.Args) > 1 {
		prefix = os.Args[1]
	}
	if err := run(os.Stdin, os.Stdout, prefix); err != nil {
		os.Exit(5)
	}
}

func run(in io.Reader, out io.Writer, prefix string) error {
	reader := bufio.NewReader(in)
	for {
		row, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if trimmed := strings.TrimSpace(row); trimmed != "" {
			line := &types.Line{}
			if err := json.Unmarshal([]byte(trimmed), line); err != nil {
				return err
			}
			line.Text = prefix + line.Text
			if err := sendResponse(out, line); err != nil {
				return err
			}
		}
		if err == io.EOF {
			return nil
		}
	}
}

func sendResponse(out io.Writer, line *types.Line) error {
	jsonResponse, err := json.Marshal(line)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, string(jsonResponse)+"\n")
	return err
}
