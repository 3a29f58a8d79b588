package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sportwallet/engine/config"
	"github.com/sportwallet/engine/ledger"
	"github.com/sportwallet/engine/store/memory"
	"github.com/sportwallet/engine/store/sqlite"
	"github.com/sportwallet/engine/wallet"
	"github.com/sportwallet/engine/wishlist"
)

// MemoryDB selects the in-memory store instead of SQLite.
const MemoryDB = ":memory:"

// app is everything a command needs, built from configuration.
type app struct {
	cfg      config.Config
	log      *logrus.Logger
	clock    ledger.Clock
	store    ledger.TxStore
	wallet   *wallet.Engine
	wishlist *wishlist.Service
	close    func() error
}

func openApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.Database.Path = flagDB
	}
	return newApp(cfg)
}

func newApp(cfg config.Config) (*app, error) {
	log, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		log:   log,
		clock: ledger.NewSystemClock(loc),
		close: func() error { return nil },
	}

	if cfg.Database.Path == MemoryDB {
		a.store = memory.New()
	} else {
		s, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
		}
		a.store = s
		a.close = s.Close
	}

	rules := wallet.DefaultRules()
	rules.SecondsPerUnit[wallet.ActivityBike] = cfg.Earning.BikeSecondsPerUnit
	rules.SecondsPerUnit[wallet.ActivityWalk] = cfg.Earning.WalkSecondsPerUnit
	rules.SecondsPerUnit[wallet.ActivityOther] = cfg.Earning.OtherSecondsPerUnit
	rules.RestDaysPerWeek = cfg.Earning.RestDaysPerWeek
	if err := rules.Validate(); err != nil {
		a.close()
		return nil, err
	}

	a.wallet = wallet.NewEngine(a.store, a.clock,
		wallet.WithRules(rules),
		wallet.WithLogger(log.WithField("component", "wallet")),
	)
	a.wishlist = wishlist.NewService(a.store, a.clock,
		wishlist.WithLogger(log.WithField("component", "wishlist")),
	)
	return a, nil
}
