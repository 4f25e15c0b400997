package cli

import (
	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailrules/internal/runtime"
)

func newAuthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize mailrules against Gmail and store the token",
		Long: `auth reads the OAuth client from credentials.json in the Gmail credentials
directory, prints a consent URL and waits for the browser redirect on a
loopback port. The resulting token is written next to the client file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runtime.Authorize(cmd.Context(), a.cfg.Gmail.CredentialsDir, cmd.OutOrStdout())
		},
	}
}
