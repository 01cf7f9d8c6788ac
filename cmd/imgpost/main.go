package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/manash/imgpost/internal/config"
	"github.com/manash/imgpost/internal/enrich"
	"github.com/manash/imgpost/internal/image"
	"github.com/manash/imgpost/internal/imagehost"
	"github.com/manash/imgpost/internal/instagram"
	"github.com/manash/imgpost/internal/keys"
	"github.com/manash/imgpost/internal/logging"
	"github.com/manash/imgpost/internal/news"
	"github.com/manash/imgpost/internal/pipeline"
	"github.com/manash/imgpost/internal/provider"
	"github.com/manash/imgpost/internal/provider/huggingface"
	"github.com/manash/imgpost/internal/security"
	"github.com/manash/imgpost/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagConfig  string
	flagSecrets string
	flagVerbose bool

	flagHFToken      string
	flagImgurID      string
	flagIGToken      string
	flagIGAccount    string
	flagNewsKey      string
	flagAlphaVantage string
)

type App struct {
	Out        io.Writer
	Err        io.Writer
	GetEnv     func(string) string
	Now        func() time.Time
	Registry   *models.ModelRegistry
	ReadSecret func(prompt string) (string, error)
	// LookupIP overrides DNS resolution for hosted URL checks.
	LookupIP func(host string) ([]net.IP, error)

	NewLogger       func(verbose bool) (*zap.Logger, error)
	NewKeyStore     func() (*keys.Store, error)
	NewGenerator    func(cfg *provider.Config, registry *models.ModelRegistry, logger *zap.Logger) (provider.Generator, error)
	NewHost         func(cfg *provider.Config, logger *zap.Logger) (pipeline.ImageHost, error)
	NewPublisher    func(cfg *provider.Config, accountID string, scopes []string, logger *zap.Logger) (pipeline.Publisher, error)
	NewNewsSearcher func(cfg *provider.Config, logger *zap.Logger) (enrich.NewsSearcher, error)
	NewMarketFeed   func(cfg *provider.Config, logger *zap.Logger) (enrich.MarketFeed, error)
}

func DefaultApp() *App {
	return &App{
		Out:         os.Stdout,
		Err:         os.Stderr,
		GetEnv:      os.Getenv,
		Now:         time.Now,
		Registry:    models.DefaultRegistry(),
		ReadSecret:  readSecret,
		NewLogger:   logging.New,
		NewKeyStore: keys.NewStore,
		NewGenerator: func(cfg *provider.Config, registry *models.ModelRegistry, logger *zap.Logger) (provider.Generator, error) {
			p, err := huggingface.New(cfg, registry, huggingface.WithLogger(logger))
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		NewHost: func(cfg *provider.Config, logger *zap.Logger) (pipeline.ImageHost, error) {
			c, err := imagehost.New(cfg, logger)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		NewPublisher: func(cfg *provider.Config, accountID string, scopes []string, logger *zap.Logger) (pipeline.Publisher, error) {
			c, err := instagram.New(cfg, accountID, instagram.WithLogger(logger), instagram.WithRequiredScopes(scopes))
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		NewNewsSearcher: func(cfg *provider.Config, logger *zap.Logger) (enrich.NewsSearcher, error) {
			c, err := news.NewNewsAPIClient(cfg, news.WithLogger(logger))
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		NewMarketFeed: func(cfg *provider.Config, logger *zap.Logger) (enrich.MarketFeed, error) {
			c, err := news.NewAlphaVantageClient(cfg, news.WithLogger(logger))
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

// readSecret reads a value without echo when stdin is a terminal, and a
// single line otherwise.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imgpost",
		Short: "Generate images from the news and post them to Instagram",
		Long: `imgpost generates an image with a Hugging Face diffusion model, hosts it on
Imgur and publishes it to an Instagram business account.

Prompts come from recent news about a topic, today's market headlines, or
randomized templates.

Examples:
  imgpost run "polish election"
  imgpost run --prompt "a lighthouse at dawn" --caption "Good morning" --hashtag sea
  imgpost run --dry-run --mode template
  imgpost batch topics.txt --delay 1m
  imgpost keys set huggingface`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default: config.yaml in the imgpost config directory)")
	pf.StringVar(&flagSecrets, "secrets", "", "secrets file with KEY=value lines, optionally base64 encoded")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging, including HTTP traffic")
	pf.StringVar(&flagHFToken, "hf-token", "", "Hugging Face token (defaults to stored key or HF_TOKEN)")
	pf.StringVar(&flagImgurID, "imgur-client-id", "", "Imgur client ID (defaults to stored key or IMGUR_CLIENT_ID)")
	pf.StringVar(&flagIGToken, "instagram-token", "", "Instagram access token (defaults to stored key or INSTAGRAM_ACCESS_TOKEN)")
	pf.StringVar(&flagIGAccount, "instagram-account", "", "Instagram account ID (defaults to stored key or INSTAGRAM_ACCOUNT_ID)")
	pf.StringVar(&flagNewsKey, "news-api-key", "", "NewsAPI key (defaults to stored key or NEWS_API_KEY)")
	pf.StringVar(&flagAlphaVantage, "alpha-vantage-key", "", "Alpha Vantage key (defaults to stored key or ALPHA_VANTAGE_API_KEY)")

	cmd.AddCommand(
		newRunCmd(app),
		newGenerateCmd(app),
		newUploadCmd(app),
		newPublishCmd(app),
		newEnrichCmd(app),
		newBatchCmd(app),
		newModelsCmd(app),
		newKeysCmd(app),
	)
	return cmd
}

// env is what every command needs once flags are parsed.
type env struct {
	app      *App
	cfg      *config.Config
	logger   *zap.Logger
	resolver *keys.Resolver
}

func (a *App) load() (*env, error) {
	path := flagConfig
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := a.NewLogger(flagVerbose || cfg.Logging.Verbose)
	if err != nil {
		return nil, err
	}

	opts := []keys.ResolverOption{keys.WithGetenv(a.GetEnv)}
	if store, err := a.NewKeyStore(); err == nil {
		opts = append(opts, keys.WithStore(store))
	} else {
		logger.Debug("key store unavailable", zap.Error(err))
	}
	if flagSecrets != "" {
		secrets, err := keys.LoadSecretsFile(flagSecrets)
		if err != nil {
			return nil, err
		}
		opts = append(opts, keys.WithSecrets(flagSecrets, secrets))
	}

	return &env{app: a, cfg: cfg, logger: logger, resolver: keys.NewResolver(opts...)}, nil
}

func explicitKey(name string) string {
	switch name {
	case keys.HuggingFace:
		return flagHFToken
	case keys.Imgur:
		return flagImgurID
	case keys.InstagramToken:
		return flagIGToken
	case keys.InstagramAccountID:
		return flagIGAccount
	case keys.NewsAPI:
		return flagNewsKey
	case keys.AlphaVantage:
		return flagAlphaVantage
	}
	return ""
}

func (e *env) credential(name string) (string, error) {
	v, source, err := e.resolver.Resolve(name, explicitKey(name))
	if err != nil {
		return "", err
	}
	e.logger.Debug("credential resolved", zap.String("name", name), zap.String("source", source))
	return v, nil
}

func seconds(d time.Duration) int {
	return int(d.Seconds())
}

func (e *env) generator() (provider.Generator, error) {
	token, err := e.credential(keys.HuggingFace)
	if err != nil {
		return nil, err
	}
	return e.app.NewGenerator(&provider.Config{
		APIKey:       token,
		BaseURL:      e.cfg.Generation.BaseURL,
		TimeoutSec:   seconds(e.cfg.GenerationTimeout()),
		MaxRetries:   e.cfg.Generation.MaxRetries,
		InitialDelay: e.cfg.InitialDelay(),
		Verbose:      flagVerbose,
	}, e.app.Registry, e.logger)
}

func (e *env) host() (pipeline.ImageHost, error) {
	clientID, err := e.credential(keys.Imgur)
	if err != nil {
		return nil, err
	}
	return e.app.NewHost(&provider.Config{
		APIKey:     clientID,
		BaseURL:    e.cfg.ImageHost.BaseURL,
		TimeoutSec: seconds(e.cfg.ImageHostTimeout()),
	}, e.logger)
}

func (e *env) publisher() (pipeline.Publisher, error) {
	token, err := e.credential(keys.InstagramToken)
	if err != nil {
		return nil, err
	}
	account, err := e.credential(keys.InstagramAccountID)
	if err != nil {
		return nil, err
	}
	return e.app.NewPublisher(&provider.Config{
		APIKey:     token,
		BaseURL:    e.cfg.Instagram.BaseURL,
		TimeoutSec: seconds(e.cfg.InstagramTimeout()),
	}, account, e.cfg.Instagram.RequiredScopes, e.logger)
}

func (e *env) rng() *rand.Rand {
	seed := e.cfg.Enrichment.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed))
}

// enricher builds the enrichment service for mode. News and market sources
// are only wired when their keys resolve.
func (e *env) enricher(mode enrich.Mode) (*enrich.Service, error) {
	rng := e.rng()
	ec := e.cfg.Enrichment

	var newsEnricher, marketEnricher enrich.Enricher

	if key := e.resolver.Optional(keys.NewsAPI, explicitKey(keys.NewsAPI)); key != "" {
		searcher, err := e.app.NewNewsSearcher(&provider.Config{APIKey: key, BaseURL: ec.NewsBaseURL}, e.logger)
		if err != nil {
			return nil, err
		}
		newsEnricher = enrich.NewNewsEnricher(searcher, enrich.NewsOptions{
			Country:  ec.Country,
			Category: ec.Category,
			Terms:    ec.Terms,
			Keywords: ec.Keywords,
		}, rng, e.logger)
	}

	if key := e.resolver.Optional(keys.AlphaVantage, explicitKey(keys.AlphaVantage)); key != "" {
		feed, err := e.app.NewMarketFeed(&provider.Config{APIKey: key, BaseURL: ec.MarketBaseURL}, e.logger)
		if err != nil {
			return nil, err
		}
		marketEnricher = enrich.NewMarketEnricher(feed, e.logger)
	}

	return enrich.NewService(mode, enrich.NewTemplateGenerator(rng), newsEnricher, marketEnricher, e.logger), nil
}

func (e *env) mode(override string) (enrich.Mode, error) {
	if override != "" {
		return enrich.ParseMode(override)
	}
	return e.cfg.EnrichMode(), nil
}

func (e *env) validator() *security.URLValidator {
	v := security.NewURLValidator(e.cfg.Image.StrictHosts)
	if e.app.LookupIP != nil {
		v = v.WithResolver(e.app.LookupIP)
	}
	return v
}

func (e *env) prepareOptions() image.PrepareOptions {
	return image.PrepareOptions{
		MaxDimension: e.cfg.Image.MaxDimension,
		Quality:      e.cfg.Image.Quality,
	}
}

func (e *env) publishOptions() instagram.PublishOptions {
	return instagram.PublishOptions{
		Validate:   e.cfg.Instagram.Validate,
		CheckQuota: e.cfg.Instagram.CheckQuota,
	}
}

// runner wires a pipeline. The publisher is skipped for dry runs so they
// work without Instagram credentials.
func (e *env) runner(modeOverride string, dryRun bool) (*pipeline.Runner, error) {
	gen, err := e.generator()
	if err != nil {
		return nil, err
	}
	host, err := e.host()
	if err != nil {
		return nil, err
	}

	var pub pipeline.Publisher
	if !dryRun {
		if pub, err = e.publisher(); err != nil {
			return nil, err
		}
	}

	mode, err := e.mode(modeOverride)
	if err != nil {
		return nil, err
	}
	enricher, err := e.enricher(mode)
	if err != nil {
		return nil, err
	}

	validator := e.validator()
	return pipeline.New(pipeline.Deps{
		Generator: gen,
		Host:      host,
		Publisher: pub,
		Enricher:  enricher,
		Saver:     image.NewSaver(validator),
		Validator: validator,
		Registry:  e.app.Registry,
		Logger:    e.logger,
		Now:       e.app.Now,
	}, pipeline.Settings{
		Model:           e.cfg.Generation.Model,
		StylePrefix:     e.cfg.Generation.StylePrefix,
		Params:          e.cfg.InferenceParams(),
		Prepare:         e.prepareOptions(),
		SaveDir:         e.cfg.Image.SaveDir,
		DeleteOnFailure: e.cfg.ImageHost.DeleteOnFailure,
		Publish:         e.publishOptions(),
	}), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}
