package main

import (
	"fmt"
	"io"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/fingerprint"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newFingerprintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <file>...",
		Short: "Print the SHA-256 fingerprint of contract files",
		Args:  cobra.MinimumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return printFingerprints(cmd.OutOrStdout(), afero.NewOsFs(), args)
		},
	}
}

// printFingerprints writes one "<digest>  <path>" line per file, the sha256sum layout.
func printFingerprints(out io.Writer, fs afero.Fs, paths []string) error {
	for _, path := range paths {
		content, err := afero.ReadFile(fs, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if _, err := fmt.Fprintf(out, "%s  %s\n", fingerprint.Compute(string(content)), path); err != nil {
			return err
		}
	}
	return nil
}
