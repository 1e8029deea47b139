package models

import (
	"log"

	"bitbucket.org/courseo/logistics_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Store{}, &Client{}, &Driver{},
		&Order{}, &OrderAssignment{},
		&MigrationRun{}, &MigrationError{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
