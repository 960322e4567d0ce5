package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/mostlikely/internal/play"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind            string
	minPlayers      int
	port            int
	prefix          string
	prizes          string
	profile         bool
	questions       string
	sendConcurrency int
	sessionTimeout  time.Duration
	tlsCert         string
	tlsKey          string
	verbose         bool
	version         bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.minPlayers < play.DefaultMinPlayers {
		return fmt.Errorf("invalid minimum player count (must be at least %d): %d", play.DefaultMinPlayers, c.minPlayers)
	}
	if c.sessionTimeout < 0 {
		return fmt.Errorf("invalid session timeout (must not be negative): %s", c.sessionTimeout)
	}
	if c.sendConcurrency < 0 {
		return fmt.Errorf("invalid send concurrency (must not be negative): %d", c.sendConcurrency)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MOSTLIKELY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "mostlikely",
		Short:         "A \"who is most likely to\" voting game for groups of friends.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: MOSTLIKELY_BIND)")
	fs.IntVar(&cfg.minPlayers, "min-players", play.DefaultMinPlayers, "players required before a round can start (env: MOSTLIKELY_MIN_PLAYERS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: MOSTLIKELY_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: MOSTLIKELY_PREFIX)")
	fs.StringVar(&cfg.prizes, "prizes", "", "path to a prizes json file, replacing the built-in prizes (env: MOSTLIKELY_PRIZES)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: MOSTLIKELY_PROFILE)")
	fs.StringVar(&cfg.questions, "questions", "", "directory holding categories.json and question csv files (env: MOSTLIKELY_QUESTIONS)")
	fs.IntVar(&cfg.sendConcurrency, "send-concurrency", 8, "maximum concurrent deliveries per broadcast, 0 for unlimited (env: MOSTLIKELY_SEND_CONCURRENCY)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 0, "time before idle game sessions are ended, 0 to disable (env: MOSTLIKELY_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: MOSTLIKELY_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: MOSTLIKELY_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: MOSTLIKELY_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: MOSTLIKELY_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("mostlikely v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
