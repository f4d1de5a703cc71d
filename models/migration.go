package models

import (
	"log"

	"bitbucket.org/onpointdev/ops_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{}, &ProjectManager{}, &WorkCrew{},
		&QboConnection{}, &QboCustomer{}, &QboTransaction{}, &QboTransactionLine{},
		&SyncRun{},
		&Project{}, &ProjectManagerAssignment{}, &WorkCrewAssignment{}, &ProjectEvent{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
