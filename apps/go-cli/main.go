package main

import (
	"runtime"

	"github.com/slush-dev/pushbridge/apps/go-cli/cmd"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// The main goroutine stays on the main OS thread; the host loop runs there.
func init() {
	runtime.LockOSThread()
}

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
