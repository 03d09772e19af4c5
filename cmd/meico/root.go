package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWith(nil)
}

// newRootCommandWith builds the command tree; a nil factory uses the Java
// bridge.
func newRootCommandWith(newEngine engineFactory) *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag, newEngine)
	flags := &convertFlags{}

	rootCmd := &cobra.Command{
		Use:   "meico [flags] <input.mei>",
		Short: "Convert MEI documents to MSM, MIDI, Wave, and MP3",
		Long: "meico converts an MEI document into the requested formats. Outputs are\n" +
			"written next to the input file.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageError("expected exactly one MEI file, got %d arguments (see meico --help)", len(args))
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, ctx, flags, args[0])
		},
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError("%v", err)
	})

	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Configuration file path")
	flags.register(rootCmd)

	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(&cobra.Command{
		Use:         "version",
		Short:       "Print the meico version",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "meico %s\n", version)
			return nil
		},
	})

	return rootCmd
}

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"
