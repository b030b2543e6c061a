package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/cancel"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/config"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/ffmpeg"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/pipeline"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/storage"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/vecindex"
)

func analyzeCmd(a *app) *cobra.Command {
	var (
		name       string
		promptName string
		threshold  float64
		minDur     float64
		hwaccel    bool
		batchSize  int
		apiKey     string
	)

	cmd := &cobra.Command{
		Use:   "analyze <video>",
		Short: "Run scene detection, keyframe extraction and analysis on a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !ffmpeg.Available() {
				return ffmpeg.ErrNotFound
			}

			cfg, err := config.Load(a.store)
			if err != nil {
				return err
			}
			// Explicit flags win over persisted settings.
			if cmd.Flags().Changed("threshold") {
				cfg.Threshold = threshold
			}
			if cmd.Flags().Changed("min-scene-duration") {
				cfg.MinSceneDuration = minDur
			}
			if cmd.Flags().Changed("hwaccel") {
				cfg.HWAccel = hwaccel
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.BatchSize = batchSize
			}
			if cmd.Flags().Changed("api-key") {
				cfg.APIKey = apiKey
			}

			prompt, err := a.store.PromptByName(promptName)
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no prompt named %q; see `sceneanalyzer prompts list`", promptName)
			}
			if err != nil {
				return err
			}

			coord, err := pipeline.New(a.store, cfg, a.logger)
			if err != nil {
				return err
			}
			coord.SetObserver(&consoleObserver{})

			if cfg.IndexDSN != "" {
				if client := coord.AnalysisClient(); client != nil && client.Configured() {
					idx, err := vecindex.Open(cmd.Context(), cfg.IndexDSN, client.Embed, a.logger)
					if err != nil {
						a.logger.Warn("scene index unavailable", "error", err)
					} else {
						defer idx.Close()
						coord.SetIndexer(idx)
					}
				}
			}

			var tok cancel.Token
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt)
			defer signal.Stop(sig)
			go func() {
				<-sig
				a.logger.Info("stop requested, finishing current step")
				tok.Stop()
			}()

			sess, err := coord.Run(cmd.Context(), args[0], name, prompt.Content, &tok)
			if err != nil {
				return err
			}

			scenes, err := a.store.ScenesForSession(sess.ID)
			if err != nil {
				return err
			}
			if tok.Stopped() {
				fmt.Printf("\nStopped. Session %d holds %d scene(s) so far.\n", sess.ID, len(scenes))
				return nil
			}
			fmt.Printf("\nSession %d: %d scene(s).\n", sess.ID, len(scenes))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "session name (default: timestamp)")
	cmd.Flags().StringVar(&promptName, "prompt", "Scene Description", "analysis prompt name")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "boundary score threshold (grayscale mean abs diff)")
	cmd.Flags().Float64Var(&minDur, "min-scene-duration", 0, "minimum scene duration in seconds")
	cmd.Flags().BoolVar(&hwaccel, "hwaccel", false, "try hardware-accelerated decoding")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "analysis batch size")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "vision API key (default: analysis.api_key setting)")
	return cmd
}

// consoleObserver renders one progress bar per pipeline stage.
type consoleObserver struct {
	pipeline.NopObserver
	bar *progressbar.ProgressBar
}

func (o *consoleObserver) StageStarted(stage string) {
	o.bar = nil
	fmt.Printf("\n%s\n", stage)
}

func (o *consoleObserver) Progress(stage string, done, total int) {
	if o.bar == nil && total > 0 {
		o.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription(stage),
			progressbar.OptionShowCount(),
		)
	}
	if o.bar != nil {
		o.bar.Set(done)
	}
}

func (o *consoleObserver) StageFailed(stage string, err error) {
	fmt.Fprintf(os.Stderr, "\n%s failed: %v\n", stage, err)
}

var _ pipeline.Observer = (*consoleObserver)(nil)
