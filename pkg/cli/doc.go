/*
Package cli provides command-line interface utilities for policyhub.

The cli package includes output formatters, error types and signal helpers
used by the policyhub command.

Output Formatting:

Command results are rendered as text, JSON or CSV. Values implementing
Tabular render as aligned columns in text mode and as rows in CSV mode:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, changes); err != nil {
		return err
	}

Signal Handling:

SIGINT and SIGTERM cancel the context returned by SetupSignalHandler.
SIGHUP is delivered on the channel from ReloadSignals and triggers a seed
reload in the run command:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
