package cli

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/northbeam-ai/sitegate/pkg/auth"
	"github.com/northbeam-ai/sitegate/pkg/config"
	"github.com/northbeam-ai/sitegate/pkg/system"
	"github.com/northbeam-ai/sitegate/pkg/version"
)

// defaultSecretBytes yields a 64 character secret after base64 encoding.
const defaultSecretBytes = 48

type Options struct {
	ConfigPath string
	Debug      bool
	// EnvFiles are loaded into the environment before the configuration is read.
	EnvFiles []string
	Out      io.Writer
	In       io.Reader
}

// DefaultOptions reads the flag defaults from the environment.
func DefaultOptions() Options {
	return Options{
		ConfigPath: getEnvString(config.ConfigPathEnv, ""),
		Debug:      getEnvBool("SITEGATE_DEBUG", false),
		EnvFiles:   []string{".env"},
		Out:        os.Stdout,
		In:         os.Stdin,
	}
}

// NewRootCommand builds the sitegate command tree. Running it without a
// subcommand starts the server.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}

	serve := newServeCommand(&opts)
	root := &cobra.Command{
		Use:           "sitegate",
		Short:         "Security gateway and backend for the Northbeam marketing site",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return config.LoadDotEnv(opts.EnvFiles...)
		},
		RunE: serve.RunE,
	}
	root.SetOut(opts.Out)

	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "Path to the sitegate configuration file")
	root.PersistentFlags().BoolVar(&opts.Debug, "debug", opts.Debug, "Enable debug logging and permissive CORS")
	root.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", opts.EnvFiles, "Env files loaded before reading the environment")

	root.AddCommand(
		serve,
		newHashPasswordCommand(&opts),
		newGenerateSecretCommand(&opts),
		newVersionCommand(&opts),
	)
	return root
}

func newServeCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.Debug {
				cfg.Server.Debug = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := system.NewLogger(cfg.Server.Debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			log := logger.Sugar()
			build := version.GetBuildInfo()
			log.Infow("Starting sitegate", "version", build.Version, "commit", build.Short())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx, cfg, logger)
			if err != nil {
				log.Errorw("Failed to initialise sitegate", "error", err)
				return err
			}
			return app.Run(ctx)
		},
	}
}

func newHashPasswordCommand(opts *Options) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print the argon2id hash of a password for ADMIN_PASSWORD_HASH",
		Long: "Hashes the password given by --password, or the first line of stdin when the flag is omitted.\n" +
			"The output is suitable for auth.admins[].passwordHash and ADMIN_PASSWORD_HASH.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				line, err := readLine(opts.In)
				if err != nil {
					return err
				}
				password = line
			}
			if password == "" {
				return errors.New("password must not be empty")
			}
			hash, err := auth.NewPasswordHasher(auth.DefaultHasherConfig()).Hash(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Password to hash (read from stdin when empty)")
	return cmd
}

func newGenerateSecretCommand(_ *Options) *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "generate-jwt-secret",
		Short: "Print a random secret for SITEGATE_JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := generateSecret(size)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), secret)
			return err
		},
	}
	cmd.Flags().IntVar(&size, "bytes", defaultSecretBytes, "Number of random bytes before encoding")
	return cmd
}

func newVersionCommand(_ *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.GetBuildInfo().String())
			return err
		},
	}
}

// generateSecret returns size random bytes, base64url encoded without padding.
// Secrets shorter than the token minimum are rejected.
func generateSecret(size int) (string, error) {
	if size < auth.MinSecretLength {
		return "", fmt.Errorf("secret must be at least %d bytes", auth.MinSecretLength)
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if sc.Scan() {
		return strings.TrimRight(sc.Text(), "\r"), nil
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return "", nil
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCommand(DefaultOptions())
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// getEnvString returns the value of an environment variable, or the provided default if not set.
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the value of an environment variable as a bool, or the provided default if not set.
// Valid true values are "true", "1", "yes" (case-insensitive).
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}
