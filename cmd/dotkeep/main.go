// Package main is the entrypoint for the dotkeep CLI.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dotkeep/dotkeep/internal/archive"
	"github.com/dotkeep/dotkeep/internal/config"
	"github.com/dotkeep/dotkeep/internal/items"
	"github.com/dotkeep/dotkeep/internal/logs"
	"github.com/dotkeep/dotkeep/internal/publish"
	"github.com/dotkeep/dotkeep/internal/resolve"
	"github.com/dotkeep/dotkeep/internal/schedule"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if os.Getenv("DOTKEEP_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dotkeep",
		Short: "dotkeep - back up your dotfiles",
		Long: `dotkeep collects your configuration files into a portable compressed
archive, optionally publishes archives to a git repository with retention
rotation, and can install a recurring schedule so backups run unattended.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newBackupCmd(),
		newScheduleCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dotkeep %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newBackupCmd() *cobra.Command {
	var push bool
	var compression string
	var level int
	var repo string

	cmd := &cobra.Command{
		Use:   "backup [output-name]",
		Short: "Create a dotfiles backup archive",
		Long: `Create a compressed archive of your dotfiles in the current directory.

The archive embeds a manifest of what was included, a README with restore
instructions, and a self-contained restore script. With --push the archive
is also published to the configured git repository, rotating out the
oldest archives beyond the retention cap.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputName := ""
			if len(args) == 1 {
				outputName = args[0]
			}
			return runBackup(outputName, push, compression, level, repo)
		},
	}

	cmd.Flags().BoolVar(&push, "push", false, "Publish the archive to the remote repository")
	cmd.Flags().StringVar(&compression, "compression", "", "Compression codec: gzip, bzip2 or xz (default gzip)")
	cmd.Flags().IntVar(&level, "level", 0, "Compression level 1-9 (default 6)")
	cmd.Flags().StringVar(&repo, "repo", "", "Remote repository as owner/name or URL")

	return cmd
}

func runBackup(outputName string, push bool, compression string, level int, repoFlag string) error {
	logger := newLogger()

	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	job := archive.NewJob()
	if outputName != "" {
		job.OutputName = outputName
	}
	if compression == "" {
		compression = cfg.Compression
	}
	if compression != "" {
		codec, err := archive.ParseCodec(compression)
		if err != nil {
			return err
		}
		job.Codec = codec
	}
	if level == 0 {
		level = cfg.Level
	}
	if level != 0 {
		if err := archive.ValidateLevel(level); err != nil {
			return err
		}
		job.Level = level
	}
	if err := job.Validate(); err != nil {
		return err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("get home directory: %w", err)
	}

	specs := cfg.ItemSpecs(items.Defaults())
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return err
		}
	}

	destDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	fmt.Printf("Backing up dotfiles from %s\n", home)
	fmt.Printf("Archive:  %s\n", job.ArchiveName())
	fmt.Printf("Codec:    %s (level %d)\n", job.Codec, job.Level)
	fmt.Println()

	resolver := resolve.New(home, logger)
	archiver := archive.New(destDir, logger)

	result, err := archiver.Assemble(context.Background(), job, resolver.Resolve(specs))
	if err != nil {
		return err
	}

	included, partial, missing := result.Manifest.Counts()
	appendRunLog(logger, fmt.Sprintf("backup %s: %d included, %d partial, %d missing",
		job.ArchiveName(), included, partial, missing))
	fmt.Println("Backup complete!")
	fmt.Printf("  Archive:  %s\n", result.ArchivePath)
	fmt.Printf("  Included: %d\n", included)
	if partial > 0 {
		fmt.Printf("  Partial:  %d (some sub-entries were unreadable)\n", partial)
	}
	if missing > 0 {
		fmt.Printf("  Skipped:  %d (not present on this machine)\n", missing)
	}

	if !push {
		return nil
	}

	repo, source := config.ResolveRepository(repoFlag, cfg)
	remoteURL := config.RemoteURL(repo)
	fmt.Println()
	fmt.Printf("Publishing to %s (from %s)...\n", repo, source)

	retention := cfg.RetentionCap
	if retention == 0 {
		retention = publish.DefaultCap
	}

	rotator := publish.NewRotator(publish.NewGit(logger), retention, logger)
	if timeout, err := cfg.PublishTimeoutDuration(); err != nil {
		fmt.Printf("WARNING: %v; publishing without a timeout\n", err)
	} else if timeout > 0 {
		rotator.SetTimeout(timeout)
	}

	pubResult, err := rotator.Publish(context.Background(), result.ArchivePath, remoteURL)
	if err != nil {
		// Publish failure never invalidates the local archive.
		appendRunLog(logger, fmt.Sprintf("publish %s failed: %v", job.ArchiveName(), err))
		fmt.Printf("WARNING: publish failed: %v\n", err)
		fmt.Printf("The local archive is intact at %s\n", result.ArchivePath)
		return nil
	}

	appendRunLog(logger, fmt.Sprintf("published %s: rotated %d, retained %d",
		pubResult.ArchiveName, len(pubResult.Rotated), pubResult.Retained))
	fmt.Println("Published successfully!")
	if len(pubResult.Rotated) > 0 {
		fmt.Printf("  Rotated out: %s\n", strings.Join(pubResult.Rotated, ", "))
	}
	fmt.Printf("  Archives retained: %d\n", pubResult.Retained)

	return nil
}

// appendRunLog records one line in the run log so interactive runs show up
// in 'schedule status' alongside scheduled ones. Best-effort: an
// unwritable log never fails the backup.
func appendRunLog(logger zerolog.Logger, line string) {
	path, err := logs.DefaultPath()
	if err != nil {
		logger.Debug().Err(err).Msg("run log path unavailable")
		return
	}
	f, err := logs.Open(path)
	if err != nil {
		logger.Debug().Err(err).Msg("run log unavailable")
		return
	}
	fmt.Fprintf(f, "%s %s\n", time.Now().Format(time.RFC3339), line)
	f.Close()
}

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage the recurring backup schedule",
		Long: `Manage the recurring backup schedule.

Without a subcommand, 'schedule' behaves like 'schedule install'.`,
	}

	installCmd := newScheduleInstallCmd()
	cmd.AddCommand(
		installCmd,
		newScheduleRemoveCmd(),
		newScheduleStatusCmd(),
	)

	// Bare 'dotkeep schedule' defaults to install.
	cmd.RunE = installCmd.RunE
	cmd.Flags().AddFlagSet(installCmd.Flags())

	return cmd
}

func newScheduleInstallCmd() *cobra.Command {
	var day int
	var hour int
	var push bool
	var backend string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the weekly backup schedule",
		Long: `Install a weekly backup schedule in the system job store.

The primary store is cron (or systemd user timers with --backend=systemd).
When anacron is available a catch-up entry is installed there as well, so
a backup missed while the machine was off runs on next availability.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(os.Stdin)

			if !cmd.Flags().Changed("day") {
				v, err := promptInt(reader, "Day of week (0=Sunday .. 6=Saturday)", 0, 6)
				if err != nil {
					return err
				}
				day = v
			}
			if !cmd.Flags().Changed("hour") {
				v, err := promptInt(reader, "Hour of day (0-23)", 0, 23)
				if err != nil {
					return err
				}
				hour = v
			}
			if !cmd.Flags().Changed("push") {
				v, err := promptYesNo(reader, "Push archives to the remote repository after each run?")
				if err != nil {
					return err
				}
				push = v
			}

			return runScheduleInstall(day, hour, push, backend)
		},
	}

	cmd.Flags().IntVar(&day, "day", 0, "Day of week, 0=Sunday through 6=Saturday")
	cmd.Flags().IntVar(&hour, "hour", 3, "Hour of day, 0-23")
	cmd.Flags().BoolVar(&push, "push", false, "Push after each scheduled run")
	cmd.Flags().StringVar(&backend, "backend", "cron", "Primary scheduler backend: cron or systemd")

	return cmd
}

func scheduleConfig(day, hour int, push bool) (schedule.Config, error) {
	executable, err := os.Executable()
	if err != nil {
		return schedule.Config{}, fmt.Errorf("locate executable: %w", err)
	}

	logPath, err := logs.DefaultPath()
	if err != nil {
		return schedule.Config{}, err
	}

	cfg := schedule.Config{
		DayOfWeek:  day,
		Hour:       hour,
		Push:       push,
		Executable: executable,
		LogPath:    logPath,
	}
	return cfg, cfg.Validate()
}

func newScheduleInstaller(backend string, logger zerolog.Logger) (*schedule.Installer, error) {
	anacronTab, err := schedule.DefaultAnacrontabPath()
	if err != nil {
		return nil, err
	}

	switch backend {
	case "cron":
		primary := schedule.NewCronBackend(logger)
		secondary := schedule.NewAnacronBackend(anacronTab, logger)
		return schedule.NewInstaller(primary, secondary, logger), nil
	case "systemd":
		unitDir, err := schedule.DefaultSystemdUnitDir()
		if err != nil {
			return nil, err
		}
		// Persistent systemd timers catch up missed runs on their own.
		return schedule.NewInstaller(schedule.NewSystemdBackend(unitDir, logger), nil, logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (supported: cron, systemd)", backend)
	}
}

func runScheduleInstall(day, hour int, push bool, backend string) error {
	logger := newLogger()

	cfg, err := scheduleConfig(day, hour, push)
	if err != nil {
		return err
	}

	installer, err := newScheduleInstaller(backend, logger)
	if err != nil {
		return err
	}

	results, err := installer.Install(context.Background(), cfg)
	if err != nil {
		return err
	}

	for _, r := range results {
		switch {
		case r.Warning != "":
			fmt.Printf("WARNING: %s: %s\n", r.Backend, r.Warning)
		case r.Outcome == schedule.OutcomeAlreadyInstalled:
			fmt.Printf("%s: already installed, nothing to do\n", r.Backend)
		default:
			fmt.Printf("%s: schedule installed\n", r.Backend)
		}
	}

	spec, _ := cfg.CronSpec()
	fmt.Printf("\nWeekly trigger: %s\n", spec)
	fmt.Printf("Run log: %s\n", cfg.LogPath)

	return nil
}

func newScheduleRemoveCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove the backup schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			installer, err := newScheduleInstaller(backend, logger)
			if err != nil {
				return err
			}

			results, err := installer.Remove(context.Background())
			if err != nil {
				return err
			}

			for _, r := range results {
				switch {
				case r.Warning != "":
					fmt.Printf("WARNING: %s: %s\n", r.Backend, r.Warning)
				case r.Removed:
					fmt.Printf("%s: schedule removed\n", r.Backend)
				default:
					fmt.Printf("%s: nothing to remove\n", r.Backend)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "cron", "Primary scheduler backend: cron or systemd")
	return cmd
}

func newScheduleStatusCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show schedule state and recent run log",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			installer, err := newScheduleInstaller(backend, logger)
			if err != nil {
				return err
			}

			results, err := installer.Status(context.Background())
			if err != nil {
				return err
			}

			for _, r := range results {
				if r.Warning != "" {
					fmt.Printf("%-8s %s\n", r.Backend+":", r.Warning)
					continue
				}
				fmt.Printf("%-8s %s\n", r.Backend+":", r.State)
			}

			logPath, err := logs.DefaultPath()
			if err != nil {
				return err
			}
			lines, err := logs.Tail(logPath, 10)
			if err != nil {
				return err
			}
			if len(lines) > 0 {
				fmt.Printf("\nRecent runs (%s):\n", logPath)
				for _, line := range lines {
					fmt.Printf("  %s\n", line)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "cron", "Primary scheduler backend: cron or systemd")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage dotkeep configuration",
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetRepoCmd(),
		newConfigSetCompressionCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDefault()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			configPath, _ := config.DefaultConfigPath()
			fmt.Printf("Config file: %s\n", configPath)
			fmt.Println()

			repo, source := config.ResolveRepository("", cfg)
			fmt.Printf("Repository:  %s (from %s)\n", repo, source)
			if cfg.Compression != "" {
				fmt.Printf("Compression: %s\n", cfg.Compression)
			}
			if cfg.Level != 0 {
				fmt.Printf("Level:       %d\n", cfg.Level)
			}
			if cfg.RetentionCap != 0 {
				fmt.Printf("Retention:   %d archives\n", cfg.RetentionCap)
			}
			if len(cfg.Items) > 0 {
				fmt.Printf("Items:       %d configured (overriding built-in library)\n", len(cfg.Items))
			} else {
				fmt.Printf("Items:       built-in library (%d targets)\n", len(items.Defaults()))
			}
			return nil
		},
	}
}

func newConfigSetRepoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-repo <owner/name>",
		Short: "Set the remote repository for published archives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDefault()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			cfg.Repository = args[0]
			if err := cfg.SaveDefault(); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Printf("Repository set to: %s\n", cfg.Repository)
			return nil
		},
	}
}

func newConfigSetCompressionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-compression <gzip|bzip2|xz>",
		Short: "Set the default compression codec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := archive.ParseCodec(args[0])
			if err != nil {
				return err
			}

			cfg, err := config.LoadDefault()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			cfg.Compression = string(codec)
			if err := cfg.SaveDefault(); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Printf("Compression set to: %s\n", cfg.Compression)
			return nil
		},
	}
}

func promptInt(reader *bufio.Reader, label string, min, max int) (int, error) {
	for {
		fmt.Printf("%s: ", label)
		line, err := reader.ReadString('\n')
		if err != nil {
			return 0, fmt.Errorf("read input: %w", err)
		}
		v, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || v < min || v > max {
			fmt.Printf("Please enter a number between %d and %d.\n", min, max)
			continue
		}
		return v, nil
	}
}

func promptYesNo(reader *bufio.Reader, label string) (bool, error) {
	fmt.Printf("%s [y/N] ", label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read input: %w", err)
	}
	switch strings.TrimSpace(strings.ToLower(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
