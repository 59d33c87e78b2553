/*
Package cli provides the output, error and signal helpers used by the relay
command.

Output Formatting:

Commands print results as text, JSON or CSV. Tables render as aligned
columns in text mode:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, table); err != nil {
		return err
	}

Status lines go through a Printer, which colors them on terminals:

	p := cli.NewPrinter(os.Stderr)
	p.Success("Providers initialized (%d providers)", n)

Exit Codes:

ExitCode maps command errors to process exit codes: 2 for configuration
errors, 3 when every provider failed, 4 for invalid run options and 130
when interrupted.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
