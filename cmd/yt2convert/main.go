package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	yt2convert "github.com/hossez/yt2convert"
	"github.com/hossez/yt2convert/internal/converter"
	"github.com/hossez/yt2convert/internal/downloader"
	"github.com/hossez/yt2convert/internal/pipeline"
	"github.com/hossez/yt2convert/internal/store"
	"github.com/hossez/yt2convert/internal/tag"
	"github.com/hossez/yt2convert/internal/tool"
	"github.com/hossez/yt2convert/internal/update"
)

// version is overridden at build time via -ldflags.
var version = "2.1.0"

type env struct {
	ConfigDir string `envconfig:"CONFIG_DIR"`
	OutputDir string `envconfig:"OUTPUT_DIR"`
	// ToolDir holds bundled yt-dlp/ffmpeg binaries probed after PATH.
	ToolDir string `envconfig:"TOOL_DIR"`
	Debug   bool   `envconfig:"DEBUG"`
}

func main() {
	var e env
	if err := envconfig.Process("yt2convert", &e); err != nil {
		log.Fatalf("bad environment: %v", err)
	}

	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !e.Debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	logger, err := config.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &cli.App{
		Name:    "yt2convert",
		Usage:   "download videos and convert them to MP3, WAV or MP4",
		Version: version,
		Commands: []*cli.Command{
			getCommand(ctx, &e),
			historyCommand(&e),
			checkUpdateCommand(ctx),
		},
		HideHelpCommand: true,
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err.Error())
	}
}

func configDir(e *env) (string, error) {
	if e.ConfigDir != "" {
		return e.ConfigDir, os.MkdirAll(e.ConfigDir, 0o750)
	}
	return store.DefaultDir()
}

func getCommand(ctx context.Context, e *env) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "download one or more URLs and convert each",
		ArgsUsage: "URL [URL...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "output `FORMAT`: MP3, WAV or MP4",
			},
			&cli.StringFlag{
				Name:    "quality",
				Aliases: []string{"q"},
				Usage:   "`QUALITY` choice for the format (see defaults in settings)",
			},
			&cli.StringFlag{
				Name:  "codec",
				Usage: "video `CODEC` family for MP4: H.264 (AVC), VP9 or AV1",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "save converted files to `DIR`",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "abort a job after `DURATION` (0 = no limit)",
			},
			&cli.BoolFlag{
				Name:  "keep-raw",
				Usage: "keep the downloaded raw media next to the output",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("%w: no URL given", yt2convert.ErrInvalidInput)
			}
			dir, err := configDir(e)
			if err != nil {
				return err
			}
			settingsStore := store.NewSettingsStore(dir)
			settings := settingsStore.Load()

			maybeNotifyUpdate(ctx, settingsStore)

			resolver := tool.NewResolver()
			resolver.BundledDir = e.ToolDir
			conv := converter.New(resolver)
			conv.KeepRaw = c.Bool("keep-raw")

			m, err := pipeline.NewManager(ctx, pipeline.Config{
				Fetcher:          downloader.New(resolver),
				Converter:        conv,
				Tagger:           tag.New(),
				Settings:         settingsStore,
				History:          store.NewHistoryStore(dir),
				JobTimeout:       c.Duration("timeout"),
				KeepRawArtifacts: c.Bool("keep-raw"),
			})
			if err != nil {
				return err
			}
			defer m.Close()

			desc, err := descriptorFromFlags(c, e, settings)
			if err != nil {
				return err
			}
			for _, url := range c.Args().Slice() {
				desc.URL = url
				if err := runJob(ctx, m, desc); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// descriptorFromFlags layers flag values over saved defaults.
func descriptorFromFlags(c *cli.Context, e *env, settings store.Settings) (yt2convert.JobDescriptor, error) {
	desc := yt2convert.JobDescriptor{
		Format:  settings.DefaultFormat,
		Quality: settings.DefaultQuality,
		Codec:   settings.DefaultCodec,
		DestDir: settings.OutputDir,
	}
	if f := c.String("format"); f != "" {
		format, err := yt2convert.ParseFormat(f)
		if err != nil {
			return desc, err
		}
		desc.Format = format
		// Saved quality belongs to the saved format; a new format means the
		// quality must be restated or defaulted.
		if c.String("quality") == "" {
			desc.Quality = defaultQualityFor(format)
		}
	}
	if q := c.String("quality"); q != "" {
		desc.Quality = q
	}
	if codec := c.String("codec"); codec != "" {
		desc.Codec = codec
	}
	if out := c.String("out"); out != "" {
		desc.DestDir = out
	} else if e.OutputDir != "" {
		desc.DestDir = e.OutputDir
	}
	return desc, nil
}

func defaultQualityFor(format yt2convert.Format) string {
	if qualities := yt2convert.AudioQualities(format); len(qualities) > 0 {
		return qualities[0]
	}
	return yt2convert.BestAvailable
}

// runJob submits one descriptor and renders its phase progress until the job
// reaches a terminal state.
func runJob(ctx context.Context, m *pipeline.Manager, desc yt2convert.JobDescriptor) error {
	sub := m.Subscribe()
	if sub == nil {
		return pipeline.ErrManagerClosed
	}
	defer sub.Close()

	j, err := m.Submit(desc)
	if err != nil {
		return err
	}

	bar := phaseBar(pipeline.PhaseDownloading)
	phase := pipeline.PhaseDownloading
	for {
		select {
		case ev := <-sub.Receive():
			state := eventState(ev)
			if state.ID != j.ID() {
				continue
			}
			if state.Phase != phase && !state.Phase.IsTerminal() {
				bar.Finish()
				bar = phaseBar(state.Phase)
				phase = state.Phase
			}
			bar.Set(int(state.Progress))
			if _, ok := ev.(pipeline.JobFinished); ok {
				bar.Finish()
				fmt.Println()
				return reportResult(state)
			}
		case <-ctx.Done():
			j.Cancel()
			<-j.Done()
			fmt.Println()
			return ctx.Err()
		}
	}
}

func eventState(ev pipeline.Event) pipeline.JobState {
	switch e := ev.(type) {
	case pipeline.JobStarted:
		return e.State
	case pipeline.JobUpdated:
		return e.State
	case pipeline.JobFinished:
		return e.State
	default:
		return ev.Job().State()
	}
}

func phaseBar(phase pipeline.Phase) *progressbar.ProgressBar {
	name := string(phase)
	name = strings.ToUpper(name[:1]) + name[1:]
	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription(name),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func reportResult(state pipeline.JobState) error {
	switch state.Phase {
	case pipeline.PhaseCompleted:
		fmt.Printf("saved %s\n", state.OutputPath)
		if state.Warning != "" {
			fmt.Printf("warning: %s\n", state.Warning)
		}
		return nil
	case pipeline.PhaseCancelled:
		return errors.New("cancelled")
	default:
		return fmt.Errorf("job failed: %s", state.ErrorDetail)
	}
}

func historyCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list past conversions",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "show at most `N` most recent entries",
			},
		},
		Action: func(c *cli.Context) error {
			dir, err := configDir(e)
			if err != nil {
				return err
			}
			entries := store.NewHistoryStore(dir).Load()
			limit := c.Int("limit")
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			for _, entry := range entries {
				name := entry.OutputPath
				if name == "" {
					name = entry.URL
				}
				fmt.Printf("%s  %-7s  %-4s %-18s %s\n",
					entry.Timestamp.Local().Format(time.DateTime),
					entry.Status, entry.Format, entry.Quality, name)
			}
			return nil
		},
	}
}

func checkUpdateCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "check-update",
		Usage: "check GitHub for a newer release",
		Action: func(c *cli.Context) error {
			rel, newer, err := update.NewChecker().Check(ctx, version)
			if err != nil {
				return err
			}
			if newer {
				fmt.Printf("new version available: %s (current %s)\n%s\n", rel.TagName, version, rel.URL)
			} else {
				fmt.Printf("up to date (%s)\n", version)
			}
			return nil
		},
	}
}

// maybeNotifyUpdate runs the once-a-day automatic check without ever blocking
// or failing the job on its account.
func maybeNotifyUpdate(ctx context.Context, settings *store.SettingsStore) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rel, newer, err := update.NewChecker().MaybeCheck(checkCtx, settings, version)
	if err != nil {
		zap.S().Debugw("update check failed", "error", err)
		return
	}
	if newer {
		fmt.Fprintf(os.Stderr, "note: a newer version is available: %s (%s)\n", rel.TagName, rel.URL)
	}
}
