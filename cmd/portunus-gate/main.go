package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gate/internal/config"
	"github.com/BrandonDHaskell/Portunus/gate/internal/health"
	"github.com/BrandonDHaskell/Portunus/gate/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/actuator"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/audit"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/otp"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

const shutdownTimeout = 10 * time.Second

func main() {
	mintFor := flag.String("mint-admin-token", "", "print an admin bearer token for this user id and exit")
	mintTTL := flag.Duration("token-ttl", 12*time.Hour, "lifetime of a minted admin token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "portunus-gate:", err)
		os.Exit(1)
	}

	if *mintFor != "" {
		tok, err := httpapi.MintAdminToken(authConfig(cfg), *mintFor, *mintTTL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "portunus-gate:", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "portunus-gate: logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("gate exited", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDev() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func authConfig(cfg *config.Config) httpapi.AuthConfig {
	return httpapi.AuthConfig{Secret: cfg.AdminJWTSecret, Issuer: cfg.AdminJWTIssuer, UserTokenTTL: cfg.UserTokenTTL}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// Audit: durable store first, Kafka fan-out when configured.
	sinks := []audit.Sink{audit.StoreSink{Store: st.events}}
	if k := audit.NewKafkaSink(cfg.KafkaBrokerList(), cfg.AuditTopic); k != nil {
		sinks = append(sinks, k)
		defer func() { _ = k.Close() }()
		logger.Info("audit events published to kafka",
			zap.Strings("brokers", cfg.KafkaBrokerList()),
			zap.String("topic", cfg.AuditTopic))
	}
	auditLog := audit.NewLogger(logger.Named("audit"), 0, sinks...)

	// OTP
	groups := otp.NewGroupCodes(cfg.BcryptCost)
	for cat, code := range map[types.Category]string{
		types.CategoryFamily:   cfg.FamilyCode,
		types.CategoryServants: cfg.ServantsCode,
		types.CategoryFriends:  cfg.FriendsCode,
	} {
		if code == "" {
			continue
		}
		if err := groups.Set(cat, code); err != nil {
			return fmt.Errorf("group code %s: %w", cat, err)
		}
	}
	authority := otp.NewAuthority(st.otps, groups)

	// Services
	registry := service.NewDoorRegistry(st.devices, logger.Named("doors"))
	door := actuator.NewHTTPActuator(st.heartbeats, actuator.Config{
		FallbackURL: cfg.ActuatorURL,
		Timeout:     cfg.ActuatorTimeout,
		Modules:     registry,
	}, logger.Named("actuator"))

	machine := service.NewRequestMachine(st.requests, st.users, authority, auditLog, service.MachineConfig{
		RegisteredOTPTTL: cfg.RegisteredOTPTTL,
		GuestOTPTTL:      cfg.GuestOTPTTL,
		ApprovalTTL:      cfg.ApprovalTTL,
		FaceWindow:       cfg.FaceWindow,
		MaxOTPAttempts:   cfg.MaxOTPAttempts,
	}, logger.Named("requests"))
	coordinator := service.NewCoordinator(machine, st.users, st.profiles, authority, door, auditLog,
		cfg.UnlockDurationMs, logger.Named("coordinator"),
		service.WithKeypadLockout(cfg.KeypadMaxFailures, cfg.KeypadLockout))
	enrollment := service.NewEnrollment(st.users, st.profiles, auditLog, logger.Named("enrollment"))
	retention := service.NewRetention(st.requests, st.otps, st.heartbeats)

	pruner := service.NewPruner(service.PrunerConfig{IntervalHours: cfg.PruneIntervalHours}, logger.Named("pruner"),
		retention.Targets(
			time.Duration(cfg.RequestRetentionDays)*24*time.Hour,
			time.Duration(cfg.HeartbeatRetentionDays)*24*time.Hour,
		)...)
	pruner.Start(ctx)

	// Transports
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:      logger.Named("http"),
		Addr:        cfg.HTTPAddr,
		Auth:        authConfig(cfg),
		Heartbeats:  service.NewHeartbeatService(st.heartbeats, registry),
		Doors:       registry,
		Machine:     machine,
		Coordinator: coordinator,
		Enrollment:  enrollment,
		Codes:       service.NewCodes(authority, auditLog, cfg.TempOTPTTL, logger.Named("codes")),
		Statistics:  service.NewStatistics(st.users, st.profiles, machine),
		Retention:   retention,
		Events:      st.events,
	})
	hs := health.New(cfg.GRPCAddr, logger.Named("health"))

	errc := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		if err := hs.Serve(); err != nil {
			errc <- err
		}
	}()
	hs.SetServing(true)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errc:
	}

	hs.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	hs.Stop(shutdownCtx)
	pruner.Stop()
	if err := auditLog.Close(shutdownCtx); err != nil {
		logger.Warn("audit drain incomplete", zap.Error(err))
	}
	return runErr
}
