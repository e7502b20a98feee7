package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"linebridge/internal/config"
	"linebridge/internal/line"
	"linebridge/internal/provider"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your linebridge installation",
		Long: `Verifies that linebridge's configuration, credentials, upstream APIs, and
journal database are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			cfgPath := resolveConfigPath()
			fmt.Printf("linebridge Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'linebridge init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}
			printPass("Config validation", "valid")
			passed++

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			// 3. OpenAI credentials and reachability
			if cfg.OpenAI.APIKey == "" {
				printFail("OpenAI API key", "not set (OPENAI_API_KEY)")
				failed++
			} else {
				completer := provider.NewOpenAI(provider.OpenAIConfig{
					APIKey:  cfg.OpenAI.APIKey,
					APIBase: cfg.OpenAI.APIBase,
					Model:   cfg.OpenAI.Model,
					Timeout: 10 * time.Second,
				})
				if err := completer.Healthy(ctx); err != nil {
					printFail("OpenAI API", err.Error())
					failed++
				} else {
					printPass("OpenAI API", fmt.Sprintf("reachable, model %s", cfg.OpenAI.Model))
					passed++
				}
			}

			// 4. LINE channel access token
			if cfg.Line.ChannelAccessToken == "" {
				printFail("LINE access token", "not set (LINE_CHANNEL_ACCESS_TOKEN)")
				failed++
			} else {
				client := line.NewClient(line.ClientConfig{
					AccessToken: cfg.Line.ChannelAccessToken,
					Timeout:     10 * time.Second,
				})
				if info, err := client.GetBotInfo(ctx); err != nil {
					printFail("LINE API", err.Error())
					failed++
				} else {
					printPass("LINE API", fmt.Sprintf("bot %q", info.DisplayName))
					passed++
				}
			}

			// 5. Channel secret (signature verification)
			if cfg.Line.ChannelSecret == "" {
				printWarn("LINE channel secret", "not set; webhook signatures will not be verified")
				warned++
			} else {
				printPass("LINE channel secret", "configured")
				passed++
			}

			// 6. Journal database writable
			if cfg.Journal.Enabled {
				if err := checkDatabase(cfg.Journal.DBPath); err != nil {
					printFail("Journal database", err.Error())
					failed++
				} else {
					printPass("Journal database", cfg.Journal.DBPath)
					passed++
				}
			}

			// 7. Server port available
			if err := checkPort(cfg.Server.Port); err != nil {
				printWarn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("Server port", fmt.Sprintf(":%d available", cfg.Server.Port))
				passed++
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running linebridge.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nlinebridge should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! linebridge is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	_, _ = db.ExecContext(ctx, "DROP TABLE _doctor_test")
	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	return ln.Close()
}

func printPass(check, detail string) {
	fmt.Printf("  ✔ %-22s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  ✘ %-22s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  ⚠ %-22s %s\n", check, detail)
}
