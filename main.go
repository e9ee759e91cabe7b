package main

import (
	"fmt"
	"os"

	"github.com/tphakala/audio-annotator/cmd"
	"github.com/tphakala/audio-annotator/internal/conf"
)

// Set at build time with -ldflags
var (
	buildDate string
	version   string
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	settings := &conf.Settings{
		Version:   version,
		BuildDate: buildDate,
	}
	if settings.Version == "" {
		settings.Version = "dev"
	}

	root := cmd.RootCommand(settings)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
