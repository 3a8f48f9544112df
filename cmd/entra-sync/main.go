package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/prestonprussell/ITLicensingBreakdown/config"
	"github.com/prestonprussell/ITLicensingBreakdown/entrasync"
	"github.com/prestonprussell/ITLicensingBreakdown/models"
)

// Out-of-band directory sync: pulls the current Entra members into the
// Integricom directory without going through the API. Intended for cron.
func main() {
	dryRun := flag.Bool("dry-run", false, "fetch and report without writing to the directory")
	flag.Parse()

	ctx := context.Background()

	source, err := entrasync.NewGraphClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *dryRun {
		set, err := source.FetchMembers()
		if err != nil {
			fmt.Fprintf(os.Stderr, "fetch failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("dry run: %d members, %d scanned, %d external skipped, %d unlicensed skipped\n",
			len(set.Members), set.UsersScanned, set.SkippedExternal, set.SkippedUnlicensed)
		for _, warning := range set.Warnings {
			fmt.Println("warning:", warning)
		}
		return
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	result, err := entrasync.SyncDirectory(ctx, source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		os.Exit(1)
	}

	encoded, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(encoded))
}
