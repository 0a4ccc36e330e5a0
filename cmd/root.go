package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped by main from the build.
var version = "dev"

const longDescription = `chatmate decides who may talk to an owner's chat assistant. Owners keep an
access list, named groups of users and a restriction flag; visitors are
admitted when the owner is open or when they are on the access list.

Run "chatmate serve" for the HTTP API and MCP endpoint, "serve --transport
stdio" to attach an MCP client directly, or the access and users commands to
administer the configured storage.`

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "chatmate",
		Short:        "Access control service for personal chat assistants",
		Long:         longDescription,
		Version:      version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate("chatmate version {{.Version}}\n")
	root.AddCommand(
		newServeCmd(),
		newAccessCmd(),
		newUsersCmd(),
		newVersionCmd(),
		newGenerateDocsCmd(),
	)
	return root
}

// SetVersion records the build version reported by --version, the version
// command and the MCP server.
func SetVersion(v string) {
	version = v
}

// Execute runs the command line and exits non-zero on error.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
