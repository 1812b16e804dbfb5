package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/psaab/bootcfg/pkg/bootcfg"
)

// shellCommands are the words the shell completes at line start.
var shellCommands = []string{"load", "cmdline", "plan", "trace", "warnings", "keys", "help", "quit"}

func newCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(shellCommands)+1)
	for _, c := range shellCommands {
		if c == "load" {
			items = append(items, readline.PcItem(c, readline.PcItemDynamic(listFiles)))
			continue
		}
		items = append(items, readline.PcItem(c))
	}
	// A bare "{" expands to a skeleton with the root keys.
	items = append(items, readline.PcItem(skeleton()))
	return readline.NewPrefixCompleter(items...)
}

func skeleton() string {
	s := "{"
	for i, k := range bootcfg.RootKeys() {
		if i > 0 {
			s += ", "
		}
		s += `"` + k + `": `
		if k == "rc" {
			s += "[]"
		} else {
			s += "{}"
		}
	}
	return s + "}"
}

// listFiles offers the documents in the current directory.
func listFiles(string) []string {
	entries, err := os.ReadDir(".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".jsonc", ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	return names
}
