package models

import (
	"log"

	"bitbucket.org/mmdatafocus/pos_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &Store{}, &User{},
		&PaymentMethod{}, &Register{},
		&RegisterEventRecord{},
		&ReconciliationReport{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
