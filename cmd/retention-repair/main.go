package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/courseo/logistics_backend/config"
	"bitbucket.org/courseo/logistics_backend/models"
	"bitbucket.org/courseo/logistics_backend/retention"
)

func main() {
	sweep := flag.Bool("sweep", false, "Also run one retention sweep after repairing dates.")
	flag.Parse()

	logger := config.GetLogger()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	result, err := retention.RepairRetentionDates(ctx, db, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "repair failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Repaired %d retention dates\n", result.Repaired)

	if *sweep {
		sweeper := retention.NewSweeper(db, logger, nil)
		sr, err := sweeper.SweepOnce(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sweep failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Sweep examined %d clients, pseudonymized %d, failed %d\n",
			sr.Examined, sr.Pseudonymized, sr.Failed)
	}

	fmt.Println("Repair complete")
}
