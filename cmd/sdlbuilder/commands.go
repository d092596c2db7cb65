package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/artpar/sdlbuilder/internal/core/compose"
	"github.com/artpar/sdlbuilder/internal/core/sdl"
	"github.com/spf13/cobra"
)

// cli carries the state shared by every command once the root has loaded
// the configuration.
type cli struct {
	configPath string
	cfg        *Config
	logger     *slog.Logger
}

// profileFlags are the --ssh and --ssh-key flags of the transform commands.
type profileFlags struct {
	ssh    bool
	sshKey string
}

// =============================================================================
// Root
// =============================================================================

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:               "sdlbuilder",
		Short:             "Generate, validate and import Akash SDL descriptors",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to config file")

	root.AddCommand(
		c.serveCmd(),
		c.exportCmd(),
		c.importCmd(),
		c.composeCmd(),
		c.defaultsCmd(),
		versionCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := LoadConfig(c.configPath)
	if err != nil {
		return &CommandError{Op: "config", Err: err, ExitCode: ExitConfigError}
	}

	// The server logs to stdout; the transform commands keep stdout for
	// their output.
	w := cmd.ErrOrStderr()
	if cmd.Name() == "serve" {
		w = cmd.OutOrStdout()
	}

	c.cfg = cfg
	c.logger = SetupLogger(cfg, w)
	return nil
}

// =============================================================================
// Commands
// =============================================================================

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.logger.Info("starting sdlbuilder",
				"version", Version,
				"config", c.configPath,
			)

			server, err := NewServer(c.cfg, c.logger)
			if err != nil {
				return &CommandError{Op: "serve", Err: err, ExitCode: ExitConfigError}
			}
			return server.Start(cmd.Context())
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	var file string
	var pf profileFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Generate SDL from a JSON services list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return &CommandError{Op: "export", Err: err, ExitCode: ExitInputError}
			}

			var services []sdl.Service
			if err := json.Unmarshal(data, &services); err != nil {
				return &CommandError{Op: "export", Err: fmt.Errorf("invalid services JSON: %w", err), ExitCode: ExitInputError}
			}

			opts, err := c.normalizeOptions(cmd, pf)
			if err != nil {
				return &CommandError{Op: "export", Err: err, ExitCode: ExitInputError}
			}

			t, closeDiag := newTransformer(c.cfg, c.logger)
			defer closeDiag()

			text, err := t.Export(services, opts)
			if err != nil {
				return &CommandError{Op: "export", Err: err, ExitCode: ExitTransformError}
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Services JSON file (- for stdin)")
	addProfileFlags(cmd, &pf, true)
	return cmd
}

func (c *cli) importCmd() *cobra.Command {
	var file string
	var pf profileFlags

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Parse SDL into a JSON services list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return &CommandError{Op: "import", Err: err, ExitCode: ExitInputError}
			}

			t, closeDiag := newTransformer(c.cfg, c.logger)
			defer closeDiag()

			services, err := t.Import(string(data), sdl.ProfileFor(c.sshMode(cmd, pf)))
			if err != nil {
				return &CommandError{Op: "import", Err: err, ExitCode: ExitTransformError}
			}
			if services == nil {
				services = []sdl.Service{}
			}
			return writeJSON(cmd.OutOrStdout(), services)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "SDL file (- for stdin)")
	addProfileFlags(cmd, &pf, false)
	return cmd
}

func (c *cli) composeCmd() *cobra.Command {
	var file string
	var pf profileFlags

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Convert a Docker Compose file into SDL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return &CommandError{Op: "compose", Err: err, ExitCode: ExitInputError}
			}

			opts, err := c.normalizeOptions(cmd, pf)
			if err != nil {
				return &CommandError{Op: "compose", Err: err, ExitCode: ExitInputError}
			}

			services, err := compose.Convert(string(data), sdl.ProfileFor(opts.WithSSH))
			if err != nil {
				return &CommandError{Op: "compose", Err: err, ExitCode: ExitInputError}
			}

			if vars := compose.ExtractVariablesFromYAML(string(data)); len(vars) > 0 {
				c.logger.Warn("compose file references unset variables", "variables", vars)
			}

			t, closeDiag := newTransformer(c.cfg, c.logger)
			defer closeDiag()

			text, err := t.Export(services, opts)
			if err != nil {
				return &CommandError{Op: "compose", Err: err, ExitCode: ExitTransformError}
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Compose file (- for stdin)")
	addProfileFlags(cmd, &pf, true)
	return cmd
}

func (c *cli) defaultsCmd() *cobra.Command {
	var pf profileFlags

	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Print the default service as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), sdl.NewService(sdl.ProfileFor(c.sshMode(cmd, pf))))
		},
	}
	addProfileFlags(cmd, &pf, false)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		// Needs no configuration
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sdlbuilder %s (built %s)\n", Version, BuildTime)
		},
	}
}

// =============================================================================
// Helpers
// =============================================================================

func addProfileFlags(cmd *cobra.Command, pf *profileFlags, withKey bool) {
	cmd.Flags().BoolVar(&pf.ssh, "ssh", false, "Use the SSH profile (defaults to builder.ssh)")
	if withKey {
		cmd.Flags().StringVar(&pf.sshKey, "ssh-key", "", "SSH public key file (defaults to builder.ssh_public_key)")
	}
}

func (c *cli) sshMode(cmd *cobra.Command, pf profileFlags) bool {
	if cmd.Flags().Changed("ssh") {
		return pf.ssh
	}
	return c.cfg.Builder.SSH
}

func (c *cli) normalizeOptions(cmd *cobra.Command, pf profileFlags) (sdl.NormalizeOptions, error) {
	opts := sdl.NormalizeOptions{WithSSH: c.sshMode(cmd, pf)}
	if !opts.WithSSH {
		return opts, nil
	}

	opts.SSHPublicKey = c.cfg.Builder.SSHPublicKey
	if pf.sshKey != "" {
		data, err := os.ReadFile(pf.sshKey)
		if err != nil {
			return opts, fmt.Errorf("failed to read SSH key: %w", err)
		}
		opts.SSHPublicKey = strings.TrimSpace(string(data))
	}
	return opts, nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
