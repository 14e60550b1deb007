package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ikkim/delivery-tracker/config"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/internal/db"
	"github.com/ikkim/delivery-tracker/internal/importer"
)

func main() {
	assumeYes := flag.Bool("y", false, "import without asking for confirmation")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: go run ./cmd/seed [-y] <xlsx_file_path>")
	}
	filePath := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		log.Fatal("Failed to open XLSX:", err)
	}
	defer file.Close()

	fmt.Printf("Reading XLSX file: %s\n", filePath)
	wb, err := importer.ReadWorkbook(file)
	if err != nil {
		log.Fatal("Failed to read XLSX:", err)
	}
	fmt.Printf("Stores to import: %d\n", len(wb.Stores))
	fmt.Printf("Users to import:  %d\n", len(wb.Users))

	if !*assumeYes {
		fmt.Print("Do you want to proceed with the import? (yes/no): ")
		var confirm string
		fmt.Scanln(&confirm)
		if confirm != "yes" && confirm != "y" {
			fmt.Println("Import cancelled.")
			return
		}
	}

	im := importer.New(
		repository.NewStoreRepository(db.GetDB()),
		repository.NewUserRepository(db.GetDB()),
	)
	result, err := im.Import(wb)
	if err != nil {
		log.Fatal("Import failed:", err)
	}

	fmt.Printf("\nSummary:\n")
	fmt.Printf("  Stores created: %d (skipped %d existing)\n", result.StoresCreated, result.StoresSkipped)
	fmt.Printf("  Users created:  %d (skipped %d existing)\n", result.UsersCreated, result.UsersSkipped)
	for _, rowErr := range result.Errors {
		fmt.Printf("  ! %s\n", rowErr)
	}
}
