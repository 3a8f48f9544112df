package models

import (
	"log"

	"github.com/prestonprussell/ITLicensingBreakdown/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&DirectoryUser{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
