package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lumenhq/offworker/internal/notify"
	"github.com/lumenhq/offworker/internal/push"
)

// PushOptions holds flags for the push command.
type PushOptions struct {
	*RootOptions
	Locale string
}

// NewPushCommand creates the push command: parse a payload offline and
// print the notification it would produce.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "push [payload]",
		Short: "Parse a push payload and print the resulting notification",
		Long: `Parse a push payload exactly the way the running agent would and print
the notification record it produces. Reads the payload from the argument,
or from stdin when no argument is given.

Useful for checking what a sender's payload will display before sending
it for real.

Examples:
  offworker push '{"title":"Deploy","body":"v2 is live"}'
  offworker push 'High priority|Task overdue'
  echo '{"message":"Hi"}' | offworker push --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Locale, "locale", "en", "locale for default notification copy")

	return cmd
}

func runPush(opts *PushOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var payload []byte
	if len(args) == 1 {
		payload = []byte(args[0])
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read payload from stdin", err)
		}
		payload = data
	}

	renderer := notify.NewRenderer(opts.Locale)
	n := push.Parse(payload, renderer.Default(), slog.Default())

	if formatter.Format == "json" {
		return formatter.Success(n)
	}

	fmt.Fprintf(formatter.Writer, "Title:  %s\n", n.Title)
	fmt.Fprintf(formatter.Writer, "Body:   %s\n", n.Body)
	fmt.Fprintf(formatter.Writer, "Icon:   %s\n", n.Icon)
	fmt.Fprintf(formatter.Writer, "Tag:    %s\n", n.Tag)
	if n.RequireInteraction {
		fmt.Fprintln(formatter.Writer, "Requires interaction")
	}
	for _, a := range n.Actions {
		fmt.Fprintf(formatter.Writer, "Action: %s (%s)\n", a.Title, a.Action)
	}
	return nil
}
