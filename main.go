package main

import "github.com/chatmate/chatmate/cmd"

// version is set with -ldflags "-X main.version=..." at release time.
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
