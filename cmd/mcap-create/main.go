package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/reallyoldfogie/mcap-go/internal/logger"
	"github.com/reallyoldfogie/mcap-go/mcap"
)

type messageSpec struct {
	ts   uint64
	data []byte
}

// parseMessage parses ts:hexpayload, e.g. 1500:0AFFEE.
func parseMessage(v string) (messageSpec, error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return messageSpec{}, fmt.Errorf("invalid --message %q, want ts:hexpayload", v)
	}
	ts, err := parseUint(parts[0])
	if err != nil {
		return messageSpec{}, errors.Wrap(err, "ts")
	}
	payload, err := hex.DecodeString(parts[1])
	if err != nil {
		return messageSpec{}, errors.Wrap(err, "hexpayload")
	}
	return messageSpec{ts: ts, data: payload}, nil
}

func parseUint(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

func parseKeyValues(pairs []string) (map[string]string, error) {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --metadata %q, want key=value", p)
		}
		m[k] = v
	}
	return m, nil
}

func newLogger(v *viper.Viper) (*zap.Logger, error) {
	c := logger.NewConfig()
	c.Format = v.GetString("log-format")
	if err := c.Level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return nil, err
	}
	return c.New(os.Stderr)
}

func newCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "mcap-create",
		Short: "Write an MCAP file from messages given on the command line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg := v.GetString("config"); cfg != "" {
				v.SetConfigFile(cfg)
				if err := v.ReadInConfig(); err != nil {
					return errors.Wrap(err, "read config")
				}
			}
			return run(cmd, v)
		},
	}
	flags := cmd.Flags()
	flags.String("config", "", "Config file (yaml, toml or json) supplying any flag")
	flags.String("out", "example.mcap", "Output .mcap path")
	flags.Int64("chunk-size", mcap.DefaultChunkSize, "Target uncompressed chunk size in bytes")
	flags.String("profile", "", "Profile written to the header")
	flags.String("library", mcap.DefaultLibrary, "Library string written to the header")
	flags.String("compression", "", "Chunk compression: none, zstd or lz4")
	flags.String("topic", "/example", "Channel topic")
	flags.String("encoding", "json", "Channel message encoding")
	flags.String("schema-name", "", "Schema name; empty writes a schemaless channel")
	flags.String("schema-encoding", "jsonschema", "Schema encoding")
	flags.String("schema-file", "", "File holding the schema data")
	flags.StringSlice("message", nil, "Message as ts:hexpayload (repeatable)")
	flags.StringSlice("metadata", nil, "Metadata key=value written as a 'cli' metadata record (repeatable)")
	flags.String("log-format", "console", "Log format: console or json")
	flags.String("log-level", "info", "Log level")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("MCAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return cmd
}

func run(cmd *cobra.Command, v *viper.Viper) error {
	log, err := newLogger(v)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	var msgs []messageSpec
	for _, s := range v.GetStringSlice("message") {
		m, err := parseMessage(s)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	md, err := parseKeyValues(v.GetStringSlice("metadata"))
	if err != nil {
		return err
	}
	compression := v.GetString("compression")
	if compression == "none" {
		compression = ""
	}

	out := v.GetString("out")
	w, err := mcap.Create(out,
		mcap.WithChunkSize(v.GetInt64("chunk-size")),
		mcap.WithProfile(v.GetString("profile")),
		mcap.WithLibrary(v.GetString("library")),
		mcap.WithCompression(mcap.Compression(compression)),
		mcap.WithLogger(log),
	)
	if err != nil {
		return errors.Wrap(err, "create writer")
	}
	if err := write(w, v, msgs, md); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "close")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d messages)\n", out, len(msgs))
	return nil
}

func write(w *mcap.Writer, v *viper.Viper, msgs []messageSpec, md map[string]string) error {
	if err := w.Open(); err != nil {
		return err
	}
	var schemaID uint16
	if name := v.GetString("schema-name"); name != "" {
		var data []byte
		if path := v.GetString("schema-file"); path != "" {
			b, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrap(err, "read schema")
			}
			data = b
		}
		id, err := w.RegisterSchema(name, v.GetString("schema-encoding"), data)
		if err != nil {
			return err
		}
		schemaID = id
	}
	channelID, err := w.RegisterChannel(schemaID, v.GetString("topic"), v.GetString("encoding"), nil)
	if err != nil {
		return err
	}
	// an empty message list still produces a valid file
	for i, m := range msgs {
		err := w.WriteMessage(&mcap.Message{
			ChannelID:   channelID,
			Sequence:    uint32(i),
			LogTime:     m.ts,
			PublishTime: m.ts,
			Data:        m.data,
		})
		if err != nil {
			return errors.Wrapf(err, "write message %d", i)
		}
	}
	if len(md) > 0 {
		return w.WriteMetadata("cli", md)
	}
	return nil
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
