// Package app composes the chat core into one fx module: workspace
// lock, store, realtime feed, presence and the chat service, wired for
// a single authenticated user.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/CandidSocials/candidWebApp/internal/binding"
	"github.com/CandidSocials/candidWebApp/internal/bus"
	"github.com/CandidSocials/candidWebApp/internal/cache"
	"github.com/CandidSocials/candidWebApp/internal/chat"
	"github.com/CandidSocials/candidWebApp/internal/config"
	"github.com/CandidSocials/candidWebApp/internal/identity"
	"github.com/CandidSocials/candidWebApp/internal/lock"
	"github.com/CandidSocials/candidWebApp/internal/logging"
	"github.com/CandidSocials/candidWebApp/internal/presence"
	"github.com/CandidSocials/candidWebApp/internal/profile"
	"github.com/CandidSocials/candidWebApp/internal/realtime"
	"github.com/CandidSocials/candidWebApp/internal/store"
	"github.com/CandidSocials/candidWebApp/internal/workspace"
)

// Params holds the workspace and user this instance runs as.
type Params struct {
	Workspace string // empty = config's default_workspace
	UserID    string // empty = anonymous, observe-only
}

// Module returns the fx module composing all providers and lifecycle
// hooks.
func Module(p Params) fx.Option {
	return fx.Module("app",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideWorkspace,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideCache,
			provideIdentity,
			provideFeed,
			providePresenceHub,
			provideResolver,
			provideService,
			provideTracker,
			provideRoomList,
			provideOnlineUsers,
		),
		fx.Invoke(registerLifecycle),
	)
}

// workspaceName is the validated workspace identity the path helpers
// are keyed on.
type workspaceName string

func provideConfig() (*config.Config, error) {
	return config.Load(workspace.ConfigPath())
}

// provideWorkspace resolves the workspace name: the caller's choice,
// or the configured default when the caller leaves it empty. The name
// is validated before any path helper sees it, so a host-supplied
// value cannot traverse out of the workspace tree.
func provideWorkspace(p Params, cfg *config.Config) (workspaceName, error) {
	name := p.Workspace
	if name == "" {
		name = cfg.DefaultWorkspace
	}
	if err := workspace.ValidateName(name); err != nil {
		return "", err
	}
	return workspaceName(name), nil
}

func provideLogger(ws workspaceName) (*zap.Logger, error) {
	name := string(ws)
	if err := workspace.EnsureDir(name); err != nil {
		return nil, err
	}
	return logging.New(workspace.LogPath(name), name)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(ws workspaceName, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring workspace lock", zap.String("workspace", string(ws)))
	l, err := lock.Acquire(workspace.LockPath(string(ws)))
	if err != nil {
		return nil, err
	}
	logger.Info("workspace lock acquired")
	return l, nil
}

func provideStore(ws workspaceName, b *bus.Bus, logger *zap.Logger) (*store.DB, error) {
	dbPath := workspace.DBPath(string(ws))
	db, err := store.Open(dbPath, b)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCache(cfg *config.Config) *cache.Cache {
	return cache.New(cfg.CacheTTL())
}

func provideIdentity(p Params) identity.Provider {
	return identity.NewStatic(p.UserID)
}

func provideFeed(b *bus.Bus) *realtime.Feed {
	return realtime.NewFeed(b)
}

func providePresenceHub(b *bus.Bus) *realtime.Presence {
	return realtime.NewPresence(b)
}

func provideResolver(db *store.DB, logger *zap.Logger) *profile.Resolver {
	return profile.NewResolver(db, logger)
}

func provideService(db *store.DB, c *cache.Cache, feed *realtime.Feed, ident identity.Provider, cfg *config.Config, logger *zap.Logger) *chat.Service {
	return chat.NewService(db, c, feed, ident, cfg.PageSize, logger)
}

func provideTracker(hub *realtime.Presence, ident identity.Provider, resolver *profile.Resolver, cfg *config.Config, logger *zap.Logger) *presence.Tracker {
	return presence.NewTracker(hub, ident, resolver, cfg.PresenceScope, logger)
}

func provideRoomList(svc *chat.Service, p Params) *binding.RoomList {
	return binding.NewRoomList(svc, p.UserID)
}

func provideOnlineUsers(tracker *presence.Tracker) *binding.OnlineUsers {
	return binding.NewOnlineUsers(tracker)
}

func registerLifecycle(lc fx.Lifecycle, svc *chat.Service, tracker *presence.Tracker, rl *binding.RoomList, ou *binding.OnlineUsers, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := tracker.Start(); err != nil {
				return err
			}
			ou.Bind()
			return nil
		},
		OnStop: func(_ context.Context) error {
			ou.Unbind()
			rl.Unbind()
			svc.Close()
			tracker.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("app stopped")
			return nil
		},
	})
}
