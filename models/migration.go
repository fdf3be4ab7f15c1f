package models

import (
	"log"

	"github.com/fieldlinehq/fsm_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Customer{},
		&QuickBooksConnection{}, &QuickBooksMapping{}, &QuickBooksSyncLog{},
		&QuickBooksItem{}, &QuickBooksSyncRun{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
