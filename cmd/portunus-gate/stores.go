package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gate/internal/config"
	"github.com/BrandonDHaskell/Portunus/gate/internal/db"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store/redisotp"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store/sqlite"
)

type stores struct {
	users      store.UserStore
	profiles   store.FaceProfileStore
	requests   store.AccessRequestStore
	otps       store.OTPStore
	events     store.AccessEventStore
	devices    store.DeviceStore
	heartbeats store.HeartbeatStore

	closers []func()
}

// Close releases backends in reverse order of opening.
func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	var (
		st  *stores
		err error
	)
	switch cfg.Store {
	case config.StoreMemory:
		st = memoryStores(cfg)
		logger.Warn("using in-memory stores; nothing survives a restart")
	default:
		if st, err = sqliteStores(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}

	if cfg.RedisAddr != "" {
		client, err := redisotp.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			st.Close()
			return nil, err
		}
		r := redisotp.New(client)
		st.otps = r
		st.closers = append(st.closers, func() { _ = r.Close() })
		logger.Info("otp records in redis", zap.String("addr", cfg.RedisAddr))
	}
	return st, nil
}

func memoryStores(cfg *config.Config) *stores {
	return &stores{
		users:      memory.NewUserStore(),
		profiles:   memory.NewFaceProfileStore(),
		requests:   memory.NewAccessRequestStore(),
		otps:       memory.NewOTPStore(),
		events:     memory.NewAccessEventStore(),
		devices:    memory.NewDeviceStore(cfg.KnownModules()),
		heartbeats: memory.New(),
	}
}

func sqliteStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env}, logger.Named("db"))
	if err != nil {
		return nil, err
	}
	w := db.NewWorker(sqlDB)

	st := &stores{
		users:      sqlite.NewUserStore(sqlDB, w),
		profiles:   sqlite.NewFaceProfileStore(sqlDB, w),
		requests:   sqlite.NewAccessRequestStore(sqlDB, w),
		otps:       sqlite.NewOTPStore(sqlDB, w),
		events:     sqlite.NewAccessEventStore(sqlDB, w),
		devices:    sqlite.NewDeviceStore(sqlDB, w),
		heartbeats: sqlite.NewHeartbeatStore(sqlDB, w),
		closers: []func(){
			func() { _ = sqlDB.Close() },
			w.Close,
		},
	}

	if cfg.IsDev() {
		if err := db.SeedDev(ctx, w, db.SeedDevOptions{KnownModules: cfg.KnownModules()}); err != nil {
			st.Close()
			return nil, fmt.Errorf("seed dev: %w", err)
		}
		logger.Info("dev seed applied",
			zap.String("module_id", db.DevModuleID),
			zap.String("admin_user_id", db.DevAdminUserID))
		return st, nil
	}

	now := time.Now().UTC()
	for _, mid := range cfg.KnownModules() {
		if err := st.devices.Commission(ctx, mid, mid, now); err != nil {
			st.Close()
			return nil, fmt.Errorf("commission %s: %w", mid, err)
		}
	}
	return st, nil
}
