// partyvc is a Discord bot that runs game team recruitments, each with its
// own temporary voice channel.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"

	"github.com/NicolasHaas/partyvc/pkg/datastore"
	"github.com/NicolasHaas/partyvc/pkg/gateway/discord"
	"github.com/NicolasHaas/partyvc/pkg/logging"
	"github.com/NicolasHaas/partyvc/pkg/profile"
	"github.com/NicolasHaas/partyvc/pkg/riot"
	"github.com/NicolasHaas/partyvc/pkg/server"
	"github.com/NicolasHaas/partyvc/pkg/version"
)

type options struct {
	configPath     string
	dbPath         string
	metricsAddr    string
	logLevel       string
	logFormat      string
	exportSessions bool
	exportProfiles bool
	showVersion    bool
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "partyvc: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	fs := pflag.NewFlagSet("partyvc", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "partyvc.yaml", "YAML config file")
	fs.StringVar(&opts.dbPath, "db", "", "SQLite database file (overrides db_path)")
	fs.StringVar(&opts.metricsAddr, "metrics", "", "HTTP bind address for /metrics (overrides metrics_addr, \"off\" to disable)")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level: "+logging.LevelNames())
	fs.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	fs.BoolVar(&opts.exportSessions, "export-sessions", false, "Print all stored sessions as YAML and exit")
	fs.BoolVar(&opts.exportProfiles, "export-profiles", false, "Print all stored profiles as YAML and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Print the version and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	if opts.showVersion {
		fmt.Println(version.Full())
		return nil
	}

	logger, err := logging.Setup(logging.Options{Level: opts.logLevel, Format: opts.logFormat, Output: os.Stdout})
	if err != nil {
		return err
	}

	if opts.exportSessions || opts.exportProfiles {
		return export(opts)
	}

	cfg, err := server.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	applyOverrides(&cfg, opts)

	var secrets server.Secrets
	if err := env.Parse(&secrets); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	logger.Info("starting partyvc", version.LogAttrs()...)

	st, err := datastore.NewProviderFactory(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	dg, err := discordgo.New("Bot " + secrets.DiscordToken)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("discord session: %w", err)
	}
	dg.Identify.Intents = discord.Intents
	gw := discord.New(dg, cfg.GuildID, logger)
	defer gw.Close()

	var lookup profile.Lookup
	if secrets.RiotAPIKey != "" {
		lookup = riot.NewClient(riot.Options{
			APIKey:   secrets.RiotAPIKey,
			Region:   cfg.RiotRegion,
			Platform: cfg.RiotPlatform,
		})
	} else {
		logger.Warn("RIOT_API_KEY not set, summoner names are not verified")
	}

	srv := server.New(cfg, server.Dependencies{
		Store:     st,
		Gateway:   gw,
		Announcer: gw,
		Lookup:    lookup,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dg.Open(); err != nil {
		_ = st.Close()
		return fmt.Errorf("discord connect: %w", err)
	}
	defer func() { _ = dg.Close() }()

	if err := gw.RegisterCommands(ctx, dg.State.User.ID); err != nil {
		slog.Error("slash commands not registered", "error", err)
	}

	return srv.Run(ctx)
}

func applyOverrides(cfg *server.Config, opts options) {
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	switch opts.metricsAddr {
	case "":
	case "off":
		cfg.MetricsAddr = ""
	default:
		cfg.MetricsAddr = opts.metricsAddr
	}
}

// export prints stored records without connecting to Discord. The config
// file is optional here.
func export(opts options) error {
	cfg := server.DefaultConfig()
	if _, err := os.Stat(opts.configPath); err == nil {
		if cfg, err = server.LoadConfig(opts.configPath); err != nil {
			return err
		}
	}
	applyOverrides(&cfg, opts)

	st, err := datastore.NewProviderFactory(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = st.Close() }()
	ctx := context.Background()

	if opts.exportSessions {
		sessions, err := st.LoadSessions(ctx)
		if err != nil {
			return fmt.Errorf("load sessions: %w", err)
		}
		data, err := server.ExportSessionsYAML(sessions)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	}
	if opts.exportProfiles {
		profiles, err := st.NonTx().ListProfiles(ctx)
		if err != nil {
			return fmt.Errorf("load profiles: %w", err)
		}
		data, err := server.ExportProfilesYAML(profiles)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	}
	return nil
}
