// Command projectform serves the project form enhancements: staged image
// uploads, the drop zone, persisted-image deletion and the tag field.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/projectform/internal/errors"
)

// Set by the build via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "projectform",
		Short: "Project form enhancement server",
		Long: `projectform runs the server behind the project edit page.

It stages image uploads with thumbnail previews, handles drag and drop,
deletes persisted images through the backend and configures the tag field.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		serveCmd(),
		initCmd(),
		versionCmd(),
	)

	return root
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[36mℹ\033[0m %s\n", fmt.Sprintf(format, args...))
}
