package main

import (
	"log"
	"os"

	infra_config "github.com/spounge-ai/persistor/internal/infra/config"
	"github.com/spounge-ai/persistor/internal/infra/persistence"
)

func main() {
	cfg, err := infra_config.Load(os.Getenv(infra_config.EnvConfigPath))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Backend.Type != infra_config.BackendPostgres {
		log.Fatalf("migrations apply to the postgres backend only, configured backend is %q", cfg.Backend.Type)
	}

	if err := persistence.MigratePostgres(cfg.Backend); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Printf("migrations completed for %s", cfg.Backend.String())
}
