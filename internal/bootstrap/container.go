package bootstrap

import (
	"net/http"

	"moviecat-admin/internal/config"
	"moviecat-admin/internal/pkg/logger"
	"moviecat-admin/pkg/catalogapi"
	"moviecat-admin/pkg/detail"
	"moviecat-admin/pkg/entity"
	"moviecat-admin/pkg/events"
	"moviecat-admin/pkg/picker"
	"moviecat-admin/pkg/session"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Container struct {
	Config *config.Config
	Logger logger.ILogger

	// Auth
	Session *session.Session

	// Upstream API
	Client *catalogapi.Client

	// Event Bus
	PubSub    *gochannel.GoChannel
	Publisher events.Publisher
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())

	sess := session.New()
	if cfg.API.Token != "" {
		if err := sess.Issue(cfg.API.Token); err != nil {
			sysLogger.Warn("BOOTSTRAP", "Ignoring CATALOG_TOKEN", map[string]interface{}{"error": err.Error()})
		}
	}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Upstream client
	client := catalogapi.NewClient(cfg.API.BaseURL,
		catalogapi.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		catalogapi.WithTokenSource(sess),
		catalogapi.WithSearchCacheTTL(cfg.API.SearchCacheTTL),
		catalogapi.WithLogger(sysLogger),
	)

	return &Container{
		Config:    cfg,
		Logger:    sysLogger,
		Session:   sess,
		Client:    client,
		PubSub:    pubSub,
		Publisher: events.NewBusPublisher(pubSub, sysLogger),
	}
}

// NewDetail builds the controller for one record page.
func (c *Container) NewDetail(kind entity.Kind, id string) *detail.Controller {
	return detail.New(kind, id, c.Client, c.Session,
		detail.WithLogger(c.Logger),
		detail.WithPublisher(c.Publisher),
		detail.WithPickerOptions(
			picker.WithDebounce(c.Config.Picker.Debounce),
			picker.WithPerPage(c.Config.Picker.PerPage),
		),
	)
}

func (c *Container) Close() error {
	// Sync on a console core fails on some terminals; nothing to do about it.
	_ = c.Logger.Sync()
	return c.PubSub.Close()
}
