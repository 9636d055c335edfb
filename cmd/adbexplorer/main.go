// adbexplorer browses and transfers files on Android devices over adb
package main

import (
	"os"

	"github.com/Ning0612/adbexplorer/internal/cli"
)

// Version is overridden at build time with -ldflags "-X main.Version=..."
var Version = "v0.1.0"

func main() {
	cli.Version = Version
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
