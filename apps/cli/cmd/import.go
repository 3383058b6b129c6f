package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abdul-hamid-achik/capfetch/packages/core/config"
	"github.com/abdul-hamid-achik/capfetch/packages/import/curl"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	importOutputFlag string
	importForceFlag  bool
	importStdoutFlag bool
)

var importCmd = &cobra.Command{
	Use:   "import <format> <source>",
	Short: "Import request settings from other tools",
	Long: `Import the headers, user agent and connection settings of a request
captured elsewhere into a capfetch config file.

Supported formats:
  curl - a curl command line, e.g. a browser's "Copy as cURL"

Examples:
  capfetch import curl request.sh
  pbpaste | capfetch import curl -`,
}

var importCurlCmd = &cobra.Command{
	Use:   "curl <file|->",
	Short: "Import from a curl command",
	Long: `Read a curl command from a file, or from stdin when the argument is "-",
and write the matching config. Only GET requests without a body are accepted.

Headers the client manages itself (Host, Connection, Accept-Encoding...) are
dropped. The URL is printed so it can be passed to capfetch.

Examples:
  capfetch import curl request.sh
  capfetch import curl - -o camera.yaml
  capfetch import curl request.sh --stdout`,
	Args: usageArgs(cobra.ExactArgs(1)),
	RunE: importCurlCommand,
}

func init() {
	importCurlCmd.Flags().StringVarP(&importOutputFlag, "output", "o", config.ConfigFilenames[0], "Config file to write")
	importCurlCmd.Flags().BoolVarP(&importForceFlag, "force", "f", false, "Overwrite an existing file")
	importCurlCmd.Flags().BoolVar(&importStdoutFlag, "stdout", false, "Print the config instead of writing it")

	importCmd.AddCommand(importCurlCmd)
	rootCmd.AddCommand(importCmd)
}

func importCurlCommand(cmd *cobra.Command, args []string) error {
	var src io.Reader
	if args[0] == "-" {
		src = cmd.InOrStdin()
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return withExitCode(ExitUsageError, err)
		}
		defer f.Close()
		src = f
	}

	line, err := curl.ReadCommand(src)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}
	parsed, err := curl.Parse(line)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	out := cmd.OutOrStdout()
	if len(parsed.Skipped) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Skipped headers with invalid names: %s\n", strings.Join(parsed.Skipped, ", "))
	}

	cfg := parsed.Config()
	if importStdoutFlag {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "# capfetch '%s'\n", parsed.URL)
		_, err = out.Write(data)
		return err
	}

	if !importForceFlag {
		if _, err := os.Stat(importOutputFlag); err == nil {
			return withExitCode(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", importOutputFlag))
		}
	}
	if err := cfg.SaveConfig(importOutputFlag); err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("failed to write config file: %w", err))
	}

	fmt.Fprintf(out, "Created: %s\n", importOutputFlag)
	if importOutputFlag == config.ConfigFilenames[0] {
		fmt.Fprintf(out, "Run: capfetch '%s'\n", parsed.URL)
	} else {
		fmt.Fprintf(out, "Run: capfetch -c %s '%s'\n", importOutputFlag, parsed.URL)
	}
	return nil
}
