package cli

import (
	"github.com/condorhq/condor/internal/config"
	"github.com/condorhq/condor/internal/connectivity"
	"github.com/condorhq/condor/internal/db"
	"github.com/condorhq/condor/internal/remote"
	syncmgr "github.com/condorhq/condor/internal/sync"
)

// App wires the condor components together for the CLI commands.
// The store is opened and migrated explicitly here; components receive
// their collaborators by injection.
type App struct {
	Config  *config.Config
	DB      *db.DB
	Repo    *db.Repository
	Monitor *connectivity.Monitor
	Remote  *remote.Client
	Manager *syncmgr.Manager
}

// OpenApp loads configuration, opens and migrates the local store and
// constructs the sync manager.
func OpenApp() (*App, error) {
	cfg := config.Load()

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	if err := db.NewMigrator(database.DB).Up(); err != nil {
		database.Close()
		return nil, err
	}

	repo := db.NewRepository(database.DB)
	monitor := connectivity.NewMonitor(cfg.StartOnline)
	client := remote.NewClient(&remote.Config{
		BaseURL: cfg.RemoteBaseURL,
		APIKey:  cfg.RemoteAPIKey,
		Timeout: cfg.RemoteTimeout,
	})

	manager := syncmgr.NewManager(repo, client, monitor, &syncmgr.Config{
		Endpoint:     cfg.SyncEndpoint,
		MaxRetries:   cfg.SyncMaxRetries,
		SyncLogLimit: cfg.SyncLogLimit,
	})

	return &App{
		Config:  cfg,
		DB:      database,
		Repo:    repo,
		Monitor: monitor,
		Remote:  client,
		Manager: manager,
	}, nil
}

// Close releases the local store.
func (a *App) Close() error {
	a.Repo.Close()
	return a.DB.Close()
}
