package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"readalong/internal/config"
	"readalong/internal/database"
	"readalong/internal/logging"
	"readalong/internal/service"
)

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)

	exportOutput := exportCmd.String("output", "", "Output file path (default: backup_YYYYMMDD_HHMMSS.json)")
	exportConfig := exportCmd.String("config", os.Getenv("READALONG_CONFIG"), "TOML config file")

	importInput := importCmd.String("input", "", "Input file path (required)")
	importClear := importCmd.Bool("clear", false, "Clear existing data before import (WARNING: destructive)")
	importConfig := importCmd.String("config", os.Getenv("READALONG_CONFIG"), "TOML config file")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var configPath *string
	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		configPath = exportConfig
	case "import":
		importCmd.Parse(os.Args[2:])
		if *importInput == "" {
			fmt.Println("Error: -input flag is required")
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		configPath = importConfig
	default:
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fatal := zerolog.New(os.Stderr)
			fatal.Fatal().Err(err).Msg("config_load_failed")
		}
	}
	log := logging.New(os.Stderr, cfg.LogLevel, logging.FormatConsole)
	ctx := context.Background()

	db, err := database.InitializeWithConfig(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database_init_failed")
	}
	defer db.Close()

	// Run migrations to ensure schema is up to date
	if err := db.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrations_failed")
	}

	backupService := service.NewBackupService(db, log)

	if os.Args[1] == "export" {
		handleExport(ctx, backupService, *exportOutput, log)
		return
	}
	handleImport(ctx, backupService, db, *importInput, *importClear, log)
}

func handleExport(ctx context.Context, backupService *service.BackupService, outputPath string, log zerolog.Logger) {
	if outputPath == "" {
		outputPath = fmt.Sprintf("backup_%s.json", time.Now().Format("20060102_150405"))
	}

	dir := filepath.Dir(outputPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Msg("output_dir_failed")
		}
	}

	log.Info().Str("path", outputPath).Msg("export_started")
	if err := backupService.Export(ctx, outputPath); err != nil {
		log.Fatal().Err(err).Msg("export_failed")
	}

	info, err := os.Stat(outputPath)
	if err == nil {
		log.Info().Str("path", outputPath).Int64("bytes", info.Size()).Msg("export_complete")
	}
}

func handleImport(ctx context.Context, backupService *service.BackupService, db *database.DB, inputPath string, clearData bool, log zerolog.Logger) {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		log.Fatal().Str("path", inputPath).Msg("input_missing")
	}

	if clearData {
		fmt.Print("WARNING: This will delete all existing profiles. Type 'yes' to confirm: ")
		confirmation, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.TrimSpace(confirmation) != "yes" {
			log.Info().Msg("import_cancelled")
			return
		}
		if err := clearDatabase(ctx, db, log); err != nil {
			log.Fatal().Err(err).Msg("clear_failed")
		}
	}

	log.Info().Str("path", inputPath).Msg("import_started")
	stats, err := backupService.Import(ctx, inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("import_failed")
	}
	log.Info().Int("users", stats.Users).Int("readings", stats.Readings).Msg("import_complete")
}

func clearDatabase(ctx context.Context, db *database.DB, log zerolog.Logger) error {
	// Children before parents.
	tables := []string{"reading_records", "users"}

	return db.InTx(ctx, func(tx database.DBTX) error {
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear table %s: %w", table, err)
			}
			log.Info().Str("table", table).Msg("table_cleared")
		}
		return nil
	})
}

func printUsage() {
	fmt.Println("ReadAlong Profile Backup Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  backup export [options]    Export profiles and reading history to JSON")
	fmt.Println("  backup import [options]    Import profiles and reading history from JSON")
	fmt.Println()
	fmt.Println("Export Options:")
	fmt.Println("  -output <file>    Output file path (default: backup_YYYYMMDD_HHMMSS.json)")
	fmt.Println("  -config <file>    TOML config file (default: $READALONG_CONFIG)")
	fmt.Println()
	fmt.Println("Import Options:")
	fmt.Println("  -input <file>     Input file path (required)")
	fmt.Println("  -clear            Clear existing data before import (WARNING: destructive)")
	fmt.Println("  -config <file>    TOML config file (default: $READALONG_CONFIG)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DB_TYPE          Database type: sqlite, postgres, or mysql (default: sqlite)")
	fmt.Println("  DB_PATH          SQLite database path (default: ./readalong.db)")
	fmt.Println("  DATABASE_URL     PostgreSQL or MySQL connection URL")
}
