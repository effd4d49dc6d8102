package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/reallyoldfogie/mcap-go/internal/logger"
	"github.com/reallyoldfogie/mcap-go/mcap"
)

func newCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "mcap-validate <file.mcap> [file2.mcap ...]",
		Short:        "Validate the structure of MCAP files",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, files []string) error {
			log := zap.NewNop()
			if !v.GetBool("quiet") {
				c := logger.NewConfig()
				c.Format = v.GetString("log-format")
				if v.GetBool("verbose") {
					c.Level = zap.DebugLevel
				}
				l, err := c.New(os.Stderr)
				if err != nil {
					return err
				}
				log = l
			}
			defer func() { _ = log.Sync() }()
			return validate(cmd, files, log, v.GetBool("quiet"))
		},
	}
	flags := cmd.Flags()
	flags.BoolP("verbose", "v", false, "Verbose output")
	flags.BoolP("quiet", "q", false, "Quiet mode (errors only)")
	flags.String("log-format", "console", "Log format: console or json")
	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("MCAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return cmd
}

func validate(cmd *cobra.Command, files []string, log *zap.Logger, quiet bool) error {
	failed := 0
	for _, file := range files {
		rep, err := mcap.ValidateFile(file, log)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", filepath.Base(file), err)
			failed++
			continue
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d messages, %d chunks, %d channels)\n",
				filepath.Base(file), rep.Messages, rep.Chunks, rep.Channels)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files invalid", failed, len(files))
	}
	if !quiet && len(files) > 1 {
		fmt.Fprintf(cmd.OutOrStdout(), "\nAll %d files are valid\n", len(files))
	}
	return nil
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
