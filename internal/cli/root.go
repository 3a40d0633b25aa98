// Package cli implements the reader command line: account management,
// passage browsing and interactive two-device reading sessions.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"readalong/internal/audio"
	"readalong/internal/config"
	"readalong/internal/content"
	"readalong/internal/logging"
	"readalong/internal/profileclient"
)

var errNotLoggedIn = errors.New("not logged in, run `reader login` first")

type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	cache   *profileclient.TokenCache
	library *content.Library
}

type rootOptions struct {
	configPath string
	server     string
	logLevel   string
}

// Execute runs the reader command line.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "reader",
		Short:         "ReadAlong reader: take turns reading a story with a friend",
		Long:          "reader connects to a ReadAlong server, lets you host or join a six-digit reading session and reads a passage sentence by sentence with your partner.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv("READALONG_CONFIG"), "TOML config file")
	flags.StringVar(&opts.server, "server", "", "ReadAlong server URL (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newSignupCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newProfileCmd(a),
		newHistoryCmd(a),
		newPassagesCmd(a),
		newCodeCmd(),
		newListenCmd(a),
		newHostCmd(a),
		newJoinCmd(a),
	)

	return rootCmd
}

func (a *app) init(cmd *cobra.Command, opts *rootOptions) error {
	cfg := config.Load()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(opts.configPath); err != nil {
			return err
		}
	}
	if opts.server != "" {
		cfg.ServerURL = opts.server
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	library, err := content.LoadFile(cfg.ContentPath)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, logging.Format(cfg.LogFormat))
	a.cache = profileclient.NewTokenCache(cfg.TokenCachePath)
	a.library = library
	return nil
}

// session returns the cached login for the configured server.
func (a *app) session() (*profileclient.Session, error) {
	sess, err := a.cache.Load(a.cfg.ServerURL)
	if errors.Is(err, profileclient.ErrNoSession) {
		return nil, errNotLoggedIn
	}
	return sess, err
}

func (a *app) client(ctx context.Context) (*profileclient.Session, *profileclient.Client, error) {
	sess, err := a.session()
	if err != nil {
		return nil, nil, err
	}
	return sess, profileclient.New(ctx, a.cfg.ServerURL, sess.Token, a.log), nil
}

func (a *app) speaker() *audio.Speaker {
	var opts []audio.Option
	if a.cfg.SpeechURL != "" {
		opts = append(opts, audio.WithBaseURL(a.cfg.SpeechURL))
	}
	return audio.NewSpeaker(a.cfg.AudioDir, a.log, opts...)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
