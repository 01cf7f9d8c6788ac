package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/manash/imgpost/internal/batch"
	"github.com/manash/imgpost/internal/display"
	"github.com/manash/imgpost/internal/image"
	"github.com/manash/imgpost/internal/instagram"
	"github.com/manash/imgpost/internal/pipeline"
	"github.com/manash/imgpost/pkg/models"
)

var (
	flagPrompt   string
	flagCaption  string
	flagHashtags []string
	flagModel    string
	flagMode     string
	flagSave     string
	flagDryRun   bool

	flagOutput        string
	flagStyle         string
	flagPrepareOutput bool
	flagPrepareUpload bool
	flagShow          bool

	flagDelay       time.Duration
	flagStopOnError bool
)

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [topic]",
		Short: "Generate, host and publish one post",
		Long: `Run the whole pipeline once and print the result as JSON.

Without --prompt the prompt is built from the topic using the configured
enrichment mode. Without a topic, randomized templates are used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(cmd, args, app)
		},
	}

	cmd.Flags().StringVarP(&flagPrompt, "prompt", "p", "", "use this prompt instead of enrichment")
	cmd.Flags().StringVarP(&flagCaption, "caption", "c", "", "post caption (defaults to the news summary or the prompt)")
	cmd.Flags().StringSliceVar(&flagHashtags, "hashtag", nil, "hashtag to add (repeatable)")
	cmd.Flags().StringVarP(&flagModel, "model", "m", "", "diffusion model (defaults to the configured model)")
	cmd.Flags().StringVar(&flagMode, "mode", "", "enrichment mode: template, news or market")
	cmd.Flags().StringVarP(&flagSave, "save", "o", "", "also save the prepared image to this path")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "generate and host the image but do not publish")

	return cmd
}

func runPost(_ *cobra.Command, args []string, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := app.load()
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	runner, err := e.runner(flagMode, flagDryRun)
	if err != nil {
		return err
	}

	var topic string
	if len(args) > 0 {
		topic = args[0]
	}

	res := runner.Run(ctx, pipeline.Options{
		Topic:    topic,
		Prompt:   flagPrompt,
		Caption:  flagCaption,
		Hashtags: flagHashtags,
		Model:    flagModel,
		SavePath: flagSave,
		DryRun:   flagDryRun,
	})

	if err := printJSON(app.Out, res); err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("post failed: %s", res.Message)
	}
	return nil
}

func newGenerateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate an image and save it locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args, app)
		},
	}

	cmd.Flags().StringVarP(&flagModel, "model", "m", "", "diffusion model (defaults to the configured model)")
	cmd.Flags().StringVar(&flagStyle, "style", "", "style prefix (defaults to the configured prefix)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output filename")
	cmd.Flags().BoolVar(&flagPrepareOutput, "prepare", false, "resize and convert to an Instagram-ready JPEG")
	cmd.Flags().BoolVar(&flagShow, "show", false, "preview the image inline (kitty, ghostty, wezterm)")

	return cmd
}

func runGenerate(_ *cobra.Command, args []string, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := app.load()
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	gen, err := e.generator()
	if err != nil {
		return err
	}

	req := models.NewGenerationRequest(args[0])
	req.Model = e.cfg.Generation.Model
	req.StylePrefix = e.cfg.Generation.StylePrefix
	req.Params = e.cfg.InferenceParams()
	if flagModel != "" && flagModel != req.Model {
		caps, ok := app.Registry.Get(flagModel)
		if !ok {
			return fmt.Errorf("unknown model %q: available models: %v", flagModel, app.Registry.List())
		}
		req.Model = flagModel
		req.Params = models.InferenceParams{}
		caps.ApplyDefaults(req)
	}
	if flagStyle != "" {
		req.StylePrefix = flagStyle
	}

	fmt.Fprintf(app.Out, "Generating image with %s...\n", req.Model)

	data, err := gen.Generate(ctx, req)
	if err != nil {
		return err
	}

	if flagPrepareOutput {
		if data, _, err = image.Prepare(data, e.prepareOptions()); err != nil {
			return err
		}
	}

	saver := image.NewSaver(e.validator())
	path := flagOutput
	if path == "" {
		dir := e.cfg.Image.SaveDir
		if dir == "" {
			dir = "."
		}
		if path, err = saver.SaveInDir(data, dir, args[0], app.Now()); err != nil {
			return err
		}
	} else if err := saver.Save(data, path); err != nil {
		return err
	}

	if flagShow {
		if err := display.New(app.Out, app.GetEnv).Show(data); err != nil {
			fmt.Fprintf(app.Err, "Warning: failed to display: %v\n", err)
		}
	}

	fmt.Fprintf(app.Out, "Saved: %s\n", path)
	return nil
}

func newUploadCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image to Imgur and print its public URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, args, app)
		},
	}

	cmd.Flags().BoolVar(&flagPrepareUpload, "prepare", true, "resize and convert to an Instagram-ready JPEG first")

	return cmd
}

func runUpload(_ *cobra.Command, args []string, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := app.load()
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	data, err := readImage(args[0], flagPrepareUpload, e.prepareOptions())
	if err != nil {
		return err
	}

	host, err := e.host()
	if err != nil {
		return err
	}

	hosted, err := host.Upload(ctx, data)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "URL: %s\n", hosted.URL)
	if hosted.DeleteHash != "" {
		fmt.Fprintf(app.Out, "Delete hash: %s\n", hosted.DeleteHash)
	}
	return nil
}

func readImage(path string, prepare bool, opts image.PrepareOptions) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if !prepare {
		if _, err := image.Inspect(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return data, nil
	}
	data, _, err = image.Prepare(data, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

func newPublishCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <image-url|file>",
		Short: "Publish an already generated image to Instagram",
		Long: `Publish an image to Instagram and print the result as JSON.

A URL must be publicly reachable over HTTPS. A local file is prepared and
sent as raw bytes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, args, app)
		},
	}

	cmd.Flags().StringVarP(&flagCaption, "caption", "c", "", "post caption")
	cmd.Flags().StringSliceVar(&flagHashtags, "hashtag", nil, "hashtag to add (repeatable)")

	return cmd
}

func runPublish(_ *cobra.Command, args []string, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := app.load()
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	var src models.ImageSource
	target := args[0]
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		if err := e.validator().Validate(target); err != nil {
			return fmt.Errorf("invalid image URL: %w", err)
		}
		src = models.SourceFromURL(target)
	} else {
		data, err := readImage(target, true, e.prepareOptions())
		if err != nil {
			return err
		}
		src = models.SourceFromBytes(data)
	}

	pub, err := e.publisher()
	if err != nil {
		return err
	}

	res := pub.Publish(ctx, instagram.PublishRequest{
		Source:   src,
		Caption:  flagCaption,
		Hashtags: flagHashtags,
	}, e.publishOptions())
	if src.IsURL() {
		res.ImageURL = src.URL
	}

	if err := printJSON(app.Out, res); err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("publish failed: %s", res.Message)
	}
	return nil
}

func newEnrichCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich [topic]",
		Short: "Print the prompt and hashtags a run would use",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(cmd, args, app)
		},
	}

	cmd.Flags().StringVar(&flagMode, "mode", "", "enrichment mode: template, news or market")

	return cmd
}

func runEnrich(_ *cobra.Command, args []string, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := app.load()
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	mode, err := e.mode(flagMode)
	if err != nil {
		return err
	}
	svc, err := e.enricher(mode)
	if err != nil {
		return err
	}

	var topic string
	if len(args) > 0 {
		topic = args[0]
	}

	content, err := svc.Enrich(ctx, topic)
	if err != nil {
		return err
	}
	return printJSON(app.Out, content)
}

func newBatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Publish one post per line of a .txt file or entry of a .json file",
		Long: `Publish posts one after another.

A .txt file holds one topic per line; lines starting with # are ignored.
A .json file holds an array of {"topic", "prompt", "caption", "hashtags"}
objects, each needing a topic or a prompt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args, app)
		},
	}

	cmd.Flags().DurationVar(&flagDelay, "delay", 0, "wait between posts (defaults to batch.delay from the config)")
	cmd.Flags().BoolVar(&flagStopOnError, "stop-on-error", false, "stop at the first failed post")
	cmd.Flags().StringVar(&flagMode, "mode", "", "enrichment mode: template, news or market")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "generate and host the images but do not publish")

	return cmd
}

func runBatch(cmd *cobra.Command, args []string, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	items, err := batch.ParseFile(args[0])
	if err != nil {
		return err
	}

	e, err := app.load()
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	runner, err := e.runner(flagMode, flagDryRun)
	if err != nil {
		return err
	}

	delay := e.cfg.BatchDelay()
	if cmd.Flags().Changed("delay") {
		delay = flagDelay
	}

	proc := batch.NewProcessor(runner, app.Out, app.Err, batch.WithLogger(e.logger))
	results, procErr := proc.Process(ctx, items, &batch.Options{
		Delay:       delay,
		StopOnError: flagStopOnError || e.cfg.Batch.StopOnError,
		DryRun:      flagDryRun,
	})
	proc.PrintSummary(results)

	if procErr != nil {
		return procErr
	}
	for _, r := range results {
		if r.Failed() {
			return fmt.Errorf("some posts failed")
		}
	}
	return nil
}

func newModelsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List known diffusion models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range app.Registry.List() {
				caps, _ := app.Registry.Get(name)
				fmt.Fprintf(app.Out, "%s\n  sizes: %s (default %s)\n  steps: %d-%d (default %d)\n",
					name, strings.Join(caps.SupportedSizes, ", "), caps.DefaultSize,
					caps.MinSteps, caps.MaxSteps, caps.DefaultSteps)
			}
			return nil
		},
	}
}
