// Command bidwatch attaches to one auction's live bidding room and streams
// reconciled bid updates to stdout. It is the reference consumer of the
// bidding session surface: load configuration, connect the hub, join the
// room, print updates until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/collectorden/bidclient/internal/auth"
	"github.com/collectorden/bidclient/internal/bidding"
	rediscache "github.com/collectorden/bidclient/internal/cache/redis"
	"github.com/collectorden/bidclient/internal/catalog"
	"github.com/collectorden/bidclient/internal/config"
	"github.com/collectorden/bidclient/internal/platform/auctionapi"
	"github.com/collectorden/bidclient/internal/platform/auctionhub"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	auctionID := flag.String("auction", "", "auction id to watch")
	token := flag.String("token", os.Getenv("BIDCLIENT_TOKEN"), "bearer token (defaults to BIDCLIENT_TOKEN)")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *auctionID == "" {
		fmt.Fprintln(os.Stderr, "usage: bidwatch -auction <id> [-config config.toml] [-token <bearer>]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *auctionID, *token, logger); err != nil && err != context.Canceled {
		logger.Error("bidwatch exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("bidwatch stopped")
}

func run(ctx context.Context, cfg *config.Config, auctionID, token string, logger *slog.Logger) error {
	tokens := auth.StaticProvider{Value: token}
	api := auctionapi.New(cfg.API.BaseURL, cfg.API.Timeout.Duration, tokens)

	// Optional redis-backed catalog cache for the listing header.
	var cache catalog.Cache
	var keyer catalog.SearchKeyer
	if cfg.Redis.Addr != "" {
		rc, err := rediscache.New(ctx, rediscache.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			logger.Warn("redis unavailable, catalog cache disabled", slog.String("error", err.Error()))
		} else {
			defer rc.Close()
			cache = rediscache.NewCatalogCache(rc.Underlying())
			keyer = rediscache.SearchKey
		}
	}

	cat := catalog.NewService(api, cache, keyer, logger)
	if listing, err := cat.GetAuction(ctx, auctionID); err != nil {
		logger.Warn("could not load listing", slog.String("error", err.Error()))
	} else {
		logger.Info("watching auction",
			slog.String("title", listing.Title),
			slog.String("status", string(listing.Status)),
			slog.Float64("current_bid", listing.CurrentBid),
			slog.Time("ends_at", listing.EndTime),
		)
	}

	// Identify the local bidder when authenticated; anonymous watchers get
	// no optimistic-promotion matching, which is fine for read-only use.
	var userID, userName string
	if token != "" {
		if me, err := api.CurrentUser(ctx); err != nil {
			logger.Warn("could not resolve current user", slog.String("error", err.Error()))
		} else {
			userID = me.ID
			userName = me.Username
		}
	}

	mgr := auctionhub.NewManager(auctionhub.ManagerOptions{
		URL:              cfg.Hub.URL,
		Tokens:           tokens,
		HandshakeTimeout: cfg.Hub.HandshakeTimeout.Duration,
		MaxReconnects:    cfg.Hub.MaxReconnects,
		Logger:           logger,
	})
	defer mgr.Disconnect()
	rooms := auctionhub.NewRooms(mgr, logger)

	var session *bidding.Session
	session = bidding.NewSession(bidding.SessionOptions{
		AuctionID: auctionID,
		UserID:    userID,
		UserName:  userName,
		API:       api,
		Hub:       mgr,
		Rooms:     rooms,
		Logger:    logger,
		OnChange: func() {
			stats := session.Stats()
			bids := session.Bids()
			attrs := []any{
				slog.String("state", string(session.State())),
				slog.Bool("connected", session.IsConnected()),
				slog.Float64("highest_bid", stats.HighestBid),
				slog.Int("bid_count", stats.BidCount),
			}
			if len(bids) > 0 {
				attrs = append(attrs,
					slog.String("top_bidder", bids[0].BidderName),
					slog.Float64("top_amount", bids[0].Amount),
				)
			}
			if msg := session.Err(); msg != "" {
				attrs = append(attrs, slog.String("error", msg))
			}
			logger.Info("auction update", attrs...)
		},
	})
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	<-ctx.Done()
	return ctx.Err()
}
