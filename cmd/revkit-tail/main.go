// Command revkit-tail logs in to a Revolt instance and prints the event
// stream as structured log lines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Revolt-Unofficial-Clients/revkit"
	"github.com/Revolt-Unofficial-Clients/revkit/internal/auth"
	"github.com/Revolt-Unofficial-Clients/revkit/internal/config"
	"github.com/Revolt-Unofficial-Clients/revkit/models"
)

func run(ctx context.Context) error {
	totp := flag.String("totp", "", "Print the current TOTP code for the given secret and exit")
	flag.Parse()

	if *totp != "" {
		code, err := auth.GenerateTOTP(*totp, time.Now())
		if err != nil {
			return err
		}
		fmt.Println(auth.FormatTOTP(code))
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	registry := prometheus.NewRegistry()
	client, err := revkit.New(revkit.Config{
		APIURL:      cfg.APIURL,
		Heartbeat:   cfg.Heartbeat,
		PongTimeout: cfg.PongTimeout,
		Format:      cfg.Format,
		Debug:       cfg.Debug,
		Logger:      logger,
		Registerer:  registry,
	})
	if err != nil {
		return err
	}
	client.AddHandler(func(e revkit.Event) { logEvent(logger, e) })

	if err := login(ctx, client, cfg); err != nil {
		return err
	}
	self := ""
	if u := client.User(); u != nil {
		self = u.Tag()
	}
	logger.Info("ready", "user", self, "servers", client.Servers.Len(), "channels", client.Channels.Len())

	g, gCtx := errgroup.WithContext(ctx)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

		g.Go(func() error {
			err := metricsServer.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		select {
		case err := <-client.Fatal():
			return err
		case <-gCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Destroy(shutdownCtx, false); err != nil {
			log.Printf("Destroy error: %v", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Metrics server shutdown error: %v", err)
			}
		}
		return nil
	})

	return g.Wait()
}

func login(ctx context.Context, client *revkit.Client, cfg *config.Config) error {
	if cfg.Token != "" {
		return client.Login(ctx, cfg.Token, revkit.TokenType(cfg.TokenType), true)
	}

	res, err := client.Authenticate(ctx, models.LoginRequest{
		Email:        cfg.Email,
		Password:     cfg.Password,
		FriendlyName: "revkit-tail",
	})
	if err != nil {
		return err
	}
	if res.MFATicket != "" {
		if cfg.TOTPSecret == "" {
			return errors.New("account requires MFA; set REVOLT_TOTP_SECRET")
		}
		code, err := auth.GenerateTOTP(cfg.TOTPSecret, time.Now())
		if err != nil {
			return err
		}
		res, err = client.RespondMFA(ctx, res.MFATicket, models.MFAResponse{TOTPCode: auth.FormatTOTP(code)})
		if err != nil {
			return err
		}
	}
	if res.Onboarding {
		return errors.New("account has no username yet; finish onboarding in a client first")
	}
	return nil
}

func logEvent(logger *slog.Logger, e revkit.Event) {
	switch e := e.(type) {
	case *revkit.MessageEvent:
		m := e.Message
		author := m.AuthorID()
		if u := m.Author(); u != nil {
			author = u.Tag()
		}
		logger.Info("message", "channel", m.ChannelID(), "author", author, "content", m.CleanContent())
	case *revkit.MessageDeleteEvent:
		logger.Info("message deleted", "channel", e.ChannelID, "id", e.ID)
	case *revkit.ServerMemberJoinEvent:
		logger.Info("member joined", "server", e.Member.ServerID(), "user", e.Member.UserID())
	case *revkit.ServerMemberLeaveEvent:
		logger.Info("member left", "server", e.Server.ID(), "user", e.UserID)
	case *revkit.ChannelStartTypingEvent:
		logger.Debug("typing", "channel", e.Channel.ID(), "user", e.UserID)
	case *revkit.DisconnectedEvent:
		logger.Warn("disconnected", "error", e.Err)
	case *revkit.ConnectingEvent:
		logger.Info("connecting")
	case *revkit.PacketEvent:
		logger.Debug("packet", "type", e.Type)
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
