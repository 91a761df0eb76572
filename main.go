package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/config"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/videoprocessor"
)

var (
	rootCmd = &cobra.Command{
		Use:   "story-video",
		Short: "Generate narrated vertical story videos",
		Long: `story-video turns narration audio, a background clip and a story into a
1080x1920 video with a title banner and word-by-word animated captions.

Examples:
  # Render one job
  story-video generate job42 title.mp3 story.mp3 minecraft.mp4 banner.png out.mp4 '{"title":"...","story":"...","subreddit":"r/AITA","author":"u/me"}' words.json

  # Render a manifest of jobs, two at a time
  story-video batch -m jobs.yaml --concurrency 2

  # Produce an alignment file for the sidecar aligner
  story-video align -a story.mp3 --text-file story.txt -o words.json --aligner engine`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	generateCmd = &cobra.Command{
		Use:   "generate <job_id> <title_audio|NONE> <story_audio> <background> <banner|NONE> <output> <story_json> <alignment_path>",
		Short: "Generate a single story video",
		Long: fmt.Sprintf(`Generate a single story video.

Progress is written to stdout as "PROGRESS <pct> <stage>" lines. On failure a
single "FATAL <stage>: <message>" line is printed and the exit code is 1.

Supported platforms:
%s`, formatSupportedPlatforms()),
		Args: cobra.ExactArgs(8),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return types.AtStage(videoprocessor.StageValidation, err)
			}
			style, err := loadStyle(cmd)
			if err != nil {
				return types.AtStage(videoprocessor.StageValidation, errors.Wrap(types.ErrValidation, err.Error()))
			}

			var story types.StoryData
			if err := json.Unmarshal([]byte(args[6]), &story); err != nil {
				return types.AtStage(videoprocessor.StageValidation, errors.Wrapf(types.ErrValidation, "invalid story JSON: %v", err))
			}

			job := videoprocessor.Job{
				ID:             args[0],
				TitleAudioPath: optionalArg(args[1]),
				StoryAudioPath: args[2],
				BackgroundPath: args[3],
				BannerPath:     optionalArg(args[4]),
				OutputPath:     args[5],
				Story:          story,
				AlignmentPath:  optionalArg(args[7]),
			}

			res, err := videoprocessor.GenerateVideo(cmd.Context(), job, videoprocessor.Options{
				Config:   cfg,
				Style:    style,
				Progress: cmd.OutOrStdout(),
				Log:      log,
			})
			if err != nil {
				return err
			}
			if res.Suspicious {
				log.Warn().Int64("size", res.Size).Msg("output is suspiciously small")
			}
			return nil
		},
	}

	batchCmd = &cobra.Command{
		Use:   "batch",
		Short: "Generate every job of a YAML manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return types.AtStage(videoprocessor.StageValidation, err)
			}
			style, err := loadStyle(cmd)
			if err != nil {
				return types.AtStage(videoprocessor.StageValidation, errors.Wrap(types.ErrValidation, err.Error()))
			}
			manifest, _ := cmd.Flags().GetString("manifest")
			concurrency, _ := cmd.Flags().GetInt("concurrency")

			outcomes, err := videoprocessor.RunBatch(cmd.Context(), manifest, concurrency, videoprocessor.Options{
				Config:   cfg,
				Style:    style,
				Progress: cmd.OutOrStdout(),
				Log:      log,
			})
			if err != nil && outcomes == nil {
				return types.AtStage(videoprocessor.StageBatch, err)
			}

			failed := 0
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "FAILED %s %s\n", o.JobID, fatalLine(o.Err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "DONE %s %s\n", o.JobID, o.Result.OutputPath)
			}
			if err != nil {
				return types.AtStage(videoprocessor.StageBatch, err)
			}
			if failed > 0 {
				return types.AtStage(videoprocessor.StageBatch, errors.Errorf("%d of %d jobs failed", failed, len(outcomes)))
			}
			return nil
		},
	}

	alignCmd = &cobra.Command{
		Use:   "align",
		Short: "Write a word alignment file for narration audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return types.AtStage(videoprocessor.StageValidation, err)
			}
			audioPath, _ := cmd.Flags().GetString("audio")
			text, _ := cmd.Flags().GetString("text")
			textFile, _ := cmd.Flags().GetString("text-file")
			output, _ := cmd.Flags().GetString("output")
			kind, _ := cmd.Flags().GetString("aligner")

			if textFile != "" {
				data, err := os.ReadFile(textFile)
				if err != nil {
					return types.AtStage(videoprocessor.StageValidation, errors.Wrap(err, "failed to read text file"))
				}
				text = string(data)
			}

			words, err := videoprocessor.AlignAudio(cmd.Context(), videoprocessor.AlignOptions{
				AudioPath:  audioPath,
				Text:       text,
				OutputPath: output,
				Kind:       types.AlignerKind(kind),
			}, cfg, log)
			if err != nil {
				return types.AtStage(videoprocessor.StageAlignment, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d words to %s\n", len(words), output)
			return nil
		},
	}

	platformsCmd = &cobra.Command{
		Use:   "platforms",
		Short: "List encoding profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range videoprocessor.GetSupportedPlatforms() {
				info, err := videoprocessor.PlatformInfo(name)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), info)
			}
			return nil
		},
	}
)

func formatSupportedPlatforms() string {
	platforms := videoprocessor.GetSupportedPlatforms()
	var sb strings.Builder
	for _, platform := range platforms {
		sb.WriteString(fmt.Sprintf("- %s\n", platform))
	}
	return sb.String()
}

// optionalArg maps the NONE sentinel and empty strings to "".
func optionalArg(v string) string {
	if v == "" || strings.EqualFold(v, config.NoneArg) {
		return ""
	}
	return v
}

// loadConfig resolves env configuration and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, logger.Nop(), errors.Wrap(types.ErrValidation, err.Error())
	}

	flags := cmd.Flags()
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("backend") {
		v, _ := flags.GetString("backend")
		cfg.Backend = types.Backend(v)
	}
	if flags.Changed("aligner") {
		v, _ := flags.GetString("aligner")
		cfg.Aligner = types.AlignerKind(v)
	}
	if flags.Changed("platform") {
		cfg.Platform, _ = flags.GetString("platform")
	}
	if flags.Changed("encode-timeout") {
		cfg.EncodeTimeout, _ = flags.GetDuration("encode-timeout")
	}
	if err := cfg.Validate(); err != nil {
		return nil, logger.Nop(), errors.Wrap(types.ErrValidation, err.Error())
	}

	log := logger.New(cfg.Verbose)
	log.Debug().
		Str("backend", string(cfg.Backend)).
		Str("aligner", string(cfg.Aligner)).
		Str("platform", cfg.Platform).
		Dur("encode_timeout", cfg.EncodeTimeout).
		Msg("configuration loaded")
	return cfg, log, nil
}

// loadStyle picks the preset and overlays the optional style file.
func loadStyle(cmd *cobra.Command) (config.CaptionStyle, error) {
	name, _ := cmd.Flags().GetString("style")
	style, err := config.StylePreset(name)
	if err != nil {
		return style, err
	}
	if path, _ := cmd.Flags().GetString("style-file"); path != "" {
		return config.LoadStyleFile(path, style)
	}
	return style, nil
}

// fatalLine formats err as "<stage>: <message>".
func fatalLine(err error) string {
	var se *types.StageError
	if errors.As(err, &se) {
		return fmt.Sprintf("%s: %v", se.Stage, se.Err)
	}
	return fmt.Sprintf("error: %v", err)
}

func addJobFlags(cmd *cobra.Command) {
	cmd.Flags().String("backend", string(types.BackendFilterGraph),
		fmt.Sprintf("Encoder backend (%s, %s)", types.BackendFilterGraph, types.BackendFrames))
	cmd.Flags().String("aligner", string(types.AlignerSidecar),
		fmt.Sprintf("Word alignment strategy (%s, %s, %s)", types.AlignerSidecar, types.AlignerHeuristic, types.AlignerEngine))
	cmd.Flags().String("style", "kinetic",
		fmt.Sprintf("Caption style preset (%s)", strings.Join(config.StylePresetNames(), ", ")))
	cmd.Flags().String("style-file", "", "YAML file overriding caption style options")
	cmd.Flags().String("platform", config.DefaultPlatform,
		fmt.Sprintf("Target platform (%s)", strings.Join(videoprocessor.GetSupportedPlatforms(), ", ")))
	cmd.Flags().Duration("encode-timeout", config.DefaultEncodeTimeout, "Abort the encode after this long")
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Generate command flags
	addJobFlags(generateCmd)

	// Batch command flags
	addJobFlags(batchCmd)
	batchCmd.Flags().StringP("manifest", "m", "", "YAML manifest of jobs")
	batchCmd.Flags().Int("concurrency", 0, "Jobs to run at once (overrides the manifest)")
	batchCmd.MarkFlagRequired("manifest")

	// Align command flags
	alignCmd.Flags().StringP("audio", "a", "", "Narration audio file")
	alignCmd.Flags().StringP("text", "t", "", "Transcript text")
	alignCmd.Flags().String("text-file", "", "File containing the transcript")
	alignCmd.Flags().StringP("output", "o", "", "Alignment JSON to write")
	alignCmd.Flags().String("aligner", string(types.AlignerHeuristic),
		fmt.Sprintf("Alignment strategy (%s, %s)", types.AlignerHeuristic, types.AlignerEngine))
	alignCmd.MarkFlagRequired("audio")
	alignCmd.MarkFlagRequired("output")
	alignCmd.MarkFlagsMutuallyExclusive("text", "text-file")

	rootCmd.AddCommand(generateCmd, batchCmd, alignCmd, platformsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL %s\n", fatalLine(err))
		stop()
		os.Exit(1)
	}
}
