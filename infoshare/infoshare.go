package infoshare

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

var (
	// Version, CommitSHA and BuildTime are set at build time, ex:
	// -ldflags "-X github.com/May-aiworks/discord-info-bot/infoshare.Version=$$(date +'%Y%m%d')"
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"

	defaultLogWriter io.Writer = os.Stdout

	msgUnknownInteraction = "⚠️ 無法處理此操作，請稍後再試。"
)

// InfoShare is the bot. It owns the discord session, the feature
// registry and, if enabled, the webhook server.
type InfoShare struct {
	config     *Config
	categories *CategorySet

	logWriter  io.Writer
	logHandler slog.Handler
	logger     *slog.Logger

	discord       *Discord
	webhookServer *DiscordWebhookServer
	registry      *Registry

	// features to load when Run is called. If empty, the default
	// share and help features are loaded.
	features []Feature

	// getInteractionHandlerFunc should be a callable to be used
	// when an interaction is received, which returns an appropriate
	// InteractionHandler. This enables command execution to remain the
	// same across webhook/gateway handlers, adjusting only the
	// request-specific discord interactions
	getInteractionHandlerFunc func(
		ctx context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler

	// runCtx is the context passed to Run, used for interactions
	// received by the webhook server
	runCtx   context.Context
	runCtxMu sync.RWMutex

	// prevents Run from executing concurrently
	runMu sync.Mutex

	// interactions currently being handled
	inFlight sync.WaitGroup

	// stopping is set once shutdown begins waiting on inFlight, after
	// which gateway interactions are no longer dispatched
	stopping   bool
	dispatchMu sync.Mutex

	// A signal is sent on this channel when startup has finished
	signalReady chan struct{}

	// Sending on this channel triggers a graceful shutdown
	signalStop chan struct{}
}

// New validates the config and returns a bot ready to Run. Configuration
// problems are returned as a *ConfigurationError.
func New(config *Config) (*InfoShare, error) {
	if config == nil {
		return nil, &ConfigurationError{Err: errors.New("no configuration provided")}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	categories, err := NewCategorySet(config.Categories)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	config.Discord.httpClient = config.HTTPClient

	d := &InfoShare{
		config:      config,
		categories:  categories,
		logWriter:   defaultLogWriter,
		signalReady: make(chan struct{}, 1),
		signalStop:  make(chan struct{}, 1),
		runCtx:      context.Background(),
	}

	d.logHandler = NewLogHandler(
		d.logWriter,
		leveler(config.LogLevel, DefaultLogLevel),
	)
	d.logger = slog.New(d.logHandler)
	slog.SetDefault(d.logger)

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		NewLogHandler(
			d.logWriter,
			leveler(config.Discord.DiscordGoLogLevel, DefaultDiscordgoLogLevel),
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	disc, err := newDiscord(
		config.Discord,
		slog.New(
			NewLogHandler(
				d.logWriter,
				leveler(config.Discord.LogLevel, DefaultDiscordLogLevel),
			),
		).With(loggerNameKey, "discord"),
	)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	d.discord = disc

	d.registry = NewRegistry(d.logger.With(loggerNameKey, "registry"))

	if config.Discord.WebhookServer.Enabled {
		webhookServer, e := newWebhookServer(d, config.Discord.WebhookServer)
		if e != nil {
			return nil, e
		}
		d.webhookServer = webhookServer
	}

	return d, nil
}

// Registry returns the bot's command registry
func (d *InfoShare) Registry() *Registry {
	return d.registry
}

// Ready returns a channel that receives once startup has finished
func (d *InfoShare) Ready() <-chan struct{} {
	return d.signalReady
}

// Stop triggers a graceful shutdown of a running bot
func (d *InfoShare) Stop() {
	select {
	case d.signalStop <- struct{}{}:
	default:
	}
}

func (d *InfoShare) runContext() context.Context {
	d.runCtxMu.RLock()
	defer d.runCtxMu.RUnlock()
	return d.runCtx
}

func (d *InfoShare) setRunContext(ctx context.Context) {
	d.runCtxMu.Lock()
	defer d.runCtxMu.Unlock()
	d.runCtx = ctx
}

// defaultFeatures returns the features loaded when none were
// set explicitly
func (d *InfoShare) defaultFeatures() []Feature {
	return []Feature{
		NewShareFeature(
			d.categories,
			d.config.Sheets,
			d.discord.session,
			slog.New(
				NewLogHandler(
					d.logWriter,
					leveler(d.config.Sheets.LogLevel, DefaultSheetsLogLevel),
				),
			),
		),
		NewHelpFeature(d.registry, d.logger),
	}
}

// Run starts the bot, blocking until ctx is canceled or Stop is called,
// then shuts down gracefully.
//
// Startup (creating the discord session, loading features, connecting to
// the gateway and registering slash commands) must finish within
// [Config.StartupTimeout].
func (d *InfoShare) Run(ctx context.Context) error {
	// prevents concurrent runs
	d.runMu.Lock()
	defer d.runMu.Unlock()

	logger := d.logger
	ctx = WithLogger(ctx, logger)

	// this is the 'runtime' context, which triggers a graceful shutdown
	// when canceled
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.setRunContext(ctx)

	go func() {
		select {
		case <-d.signalStop:
			logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", d.config))

	startCtx, startCancel := context.WithTimeout(ctx, d.config.StartupTimeout)
	defer startCancel()

	initErr := make(chan error, 1)
	go func() {
		initErr <- d.initRun(startCtx, ctx)
	}()

	select {
	case <-startCtx.Done():
		_ = d.shutdown(ctx)
		return fmt.Errorf("startup cancelled or timed out: %w", startCtx.Err())
	case err := <-initErr:
		if err != nil {
			logger.ErrorContext(ctx, "init error", tint.Err(err))
			_ = d.shutdown(ctx)
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if d.webhookServer != nil {
		g.Go(
			func() error {
				err := d.webhookServer.Serve(gctx)
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.ErrorContext(ctx, "error serving webhook HTTP", tint.Err(err))
					return fmt.Errorf("webhook server: %w", err)
				}
				return nil
			},
		)
	} else if !d.config.Discord.GatewayEnabled {
		logger.WarnContext(ctx, "discord gateway and webhook server disabled")
	}

	g.Go(
		func() error {
			<-gctx.Done()
			return d.shutdown(ctx)
		},
	)

	select {
	case d.signalReady <- struct{}{}:
	default:
	}
	logger.InfoContext(ctx, "ready")

	return g.Wait()
}

// initRun creates the discord session, loads features, connects to the
// gateway and registers commands. Interactions received by the gateway
// are handled with runCtx.
func (d *InfoShare) initRun(startCtx context.Context, runCtx context.Context) error {
	logger := d.logger

	if d.discord.session == nil {
		session, err := d.discord.newSession()
		if err != nil {
			return fmt.Errorf("error creating discord session: %w", err)
		}
		d.discord.session = session
	}
	session := d.discord.session

	d.dispatchMu.Lock()
	d.stopping = false
	d.dispatchMu.Unlock()

	for _, remove := range d.discord.discordgoRemoveHandlerFuncs {
		remove()
	}
	d.discord.discordgoRemoveHandlerFuncs = []func(){
		session.AddHandler(d.discord.handlerConnect()),
		session.AddHandler(d.discord.handlerDisconnect()),
		session.AddHandler(d.discord.handlerReady()),
		session.AddHandler(
			func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
				handler := d.getInteractionHandlerFunc(runCtx, i)
				if !d.dispatch(runCtx, handler) {
					handler.Logger().WarnContext(runCtx, "shutting down, interaction dropped")
				}
			},
		),
	}

	if d.getInteractionHandlerFunc == nil {
		d.getInteractionHandlerFunc = func(
			_ context.Context,
			i *discordgo.InteractionCreate,
		) InteractionHandler {
			return GatewayHandler{
				session:     d.discord.session,
				interaction: i,
				logger: d.logger.With(
					slog.Group("interaction", interactionLogAttrs(*i)...),
				),
			}
		}
	}

	features := d.features
	if len(features) == 0 {
		features = d.defaultFeatures()
		d.features = features
	}
	if err := d.registry.LoadFeatures(startCtx, features...); err != nil {
		logger.WarnContext(startCtx, "some features failed to load", tint.Err(err))
	}

	if d.config.Discord.GatewayEnabled {
		logger.InfoContext(startCtx, "connecting to discord")
		if err := session.Open(); err != nil {
			logger.ErrorContext(startCtx, "error connecting to discord!", tint.Err(err))
			return fmt.Errorf("error connecting to discord: %w", err)
		}
	}

	if _, err := d.discord.registerCommands(
		d.registry.ApplicationCommands(),
		discordgo.WithContext(startCtx),
	); err != nil {
		logger.ErrorContext(startCtx, "error syncing slash commands", tint.Err(err))
	}
	return nil
}

// handleInteraction routes the interaction to the handler registered for
// it. Pings are answered directly, and interactions from bots are ignored.
func (d *InfoShare) handleInteraction(ctx context.Context, handler InteractionHandler) {
	i := handler.GetInteraction()
	logger := handler.Logger()
	if logger == nil {
		logger = d.logger
	}
	ctx = WithLogger(ctx, logger)

	defer func() {
		if rc := recover(); rc != nil {
			d.handleRecover(ctx, handler, rc)
		}
	}()

	if i.Type == discordgo.InteractionPing {
		_ = handler.Respond(
			ctx,
			&discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong},
		)
		return
	}

	user := interactionUser(i)
	if user == nil {
		logger.ErrorContext(ctx, "no user found in interaction")
		return
	}
	if user.Bot {
		logger.WarnContext(ctx, "user is bot, ignoring")
		return
	}

	logger.InfoContext(
		ctx,
		"received interaction",
		"method", handler.InteractionReceiveMethod(),
	)

	route := d.registry.Route(i)
	if route == nil {
		logger.WarnContext(ctx, "no handler registered for interaction")
		_ = handler.Respond(ctx, ephemeralMessage(msgUnknownInteraction))
		return
	}
	route(ctx, handler)
}

// handleRecover logs a panic raised while handling an interaction, and
// tells the user something went wrong.
func (*InfoShare) handleRecover(ctx context.Context, handler InteractionHandler, rc any) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = slog.Default()
	}
	stackTrace := string(debug.Stack())

	var err error
	switch v := rc.(type) {
	case error:
		err = v
	case string:
		err = errors.New(v)
	default:
		err = fmt.Errorf("%v", v)
	}
	logger.ErrorContext(
		ctx,
		"recovered from panic",
		tint.Err(err),
		"stack_trace", stackTrace,
	)

	content := fmt.Sprintf(msgErrorTemplate, err.Error())
	if respErr := handler.Respond(ctx, ephemeralMessage(content)); respErr != nil {
		// already responded, so replace the response instead
		_, _ = handler.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
	}
}

// dispatch handles the interaction in a new goroutine, tracked by
// inFlight. It returns false without handling the interaction once
// shutdown has started.
func (d *InfoShare) dispatch(ctx context.Context, handler InteractionHandler) bool {
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()
	if d.stopping {
		return false
	}
	d.inFlight.Add(1)
	go func() {
		defer d.inFlight.Done()
		d.handleInteraction(ctx, handler)
	}()
	return true
}

func (d *InfoShare) stopDispatch() {
	d.dispatchMu.Lock()
	d.stopping = true
	d.dispatchMu.Unlock()
}

// shutdown stops the webhook server, waits for in-flight interactions
// (up to [Config.ShutdownTimeout]) and closes the discord session.
func (d *InfoShare) shutdown(ctx context.Context) error {
	d.logger.WarnContext(ctx, "shutting down")

	shutdownStart := time.Now()
	closeCtx, closeCancel := context.WithTimeout(
		context.Background(),
		d.config.ShutdownTimeout,
	)
	defer closeCancel()

	var errs []error

	if d.webhookServer != nil {
		if err := d.webhookServer.Shutdown(closeCtx); err != nil {
			errs = append(errs, fmt.Errorf("error stopping webhook server: %w", err))
		}
	}

	for _, remove := range d.discord.discordgoRemoveHandlerFuncs {
		remove()
	}
	d.discord.discordgoRemoveHandlerFuncs = nil

	d.stopDispatch()
	finished := make(chan struct{})
	go func() {
		d.inFlight.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		d.logger.InfoContext(
			ctx,
			"finished handling in-flight interactions",
			"duration", time.Since(shutdownStart),
		)
	case <-closeCtx.Done():
		errs = append(errs, errors.New("in-flight interactions did not finish in time"))
	}

	for _, f := range d.features {
		if closer, ok := f.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("error closing feature %s: %w", f.Name(), err))
			}
		}
	}

	if d.config.Discord.GatewayEnabled && d.discord.session != nil {
		if err := d.discord.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing discord session: %w", err))
		}
	}

	d.logger.InfoContext(ctx, "shutdown complete", "duration", time.Since(shutdownStart))
	return errors.Join(errs...)
}
