package server

import (
	"database/sql"
	"fmt"

	"github.com/faciam-dev/gcdisk/internal/config"
	"github.com/faciam-dev/gcdisk/internal/events"
	"github.com/faciam-dev/gcdisk/internal/logger"
)

// initEvents installs the global events dispatcher. Failed deliveries go to
// the events_failed table when a database is available.
func initEvents(db *sql.DB, cfg config.Config) error {
	evtConf, err := events.LoadConfig(cfg.EventsConfig)
	if err != nil {
		return fmt.Errorf("load events config: %w", err)
	}
	var dlq events.DLQ
	if db != nil {
		dlq = &events.SQLDLQ{DB: db, Driver: cfg.Driver, TablePrefix: cfg.TablePrefix}
	}
	d, err := events.FromConfig(evtConf, dlq)
	if err != nil {
		return err
	}
	logger.L.Info("events dispatcher ready", "sinks", d.Sinks())
	events.Default = d
	return nil
}
