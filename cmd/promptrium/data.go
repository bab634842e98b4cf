package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	exportOutput string
	clearYes     bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all prompts and settings to JSON",
	Long: `Export the whole library and settings as a JSON document.

Without --output the file is written to the current directory under the
dated default name. Use --output - to write to stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.svc.RenderExport()
		if err != nil {
			return err
		}

		if exportOutput == "-" {
			if _, err := cmd.OutOrStdout().Write(res.Data); err != nil {
				return err
			}
			return a.svc.CommitExport(cmd.Context(), res)
		}
		path := exportOutput
		if path == "" {
			path = res.Filename
		}
		if err := os.WriteFile(path, res.Data, 0600); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		if err := a.svc.CommitExport(cmd.Context(), res); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d prompts to %s\n", len(res.Document.Prompts), path)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Replace the library with an exported JSON document",
	Long: `Replace every prompt with the ones in an export document and merge its
settings. Nothing changes when the document is malformed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.svc.ImportData(cmd.Context(), r); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Imported %d prompts\n", len(a.svc.Prompts()))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every prompt and reset settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearYes {
			return errors.New("refusing to clear without --yes")
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		return a.svc.ClearAllData(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "promptrium %s\n", Version)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file, or - for stdout")
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "Confirm deletion")

	rootCmd.AddCommand(exportCmd, importCmd, clearCmd, versionCmd)
}
