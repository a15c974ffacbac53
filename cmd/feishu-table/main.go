// Command feishu-table is a small CLI for pushing tabular data into a Feishu
// Bitable table and reading it back.
//
// Usage:
//
//	feishu-table -config config.hcl -app-token <token> -table <id> <command> [args]
//
// Commands:
//
//	get-user <email>     look up a user id by email
//	import <file.csv>    batch-insert the rows of a CSV file
//	query                print all records in the table
//	delete-all           delete every record in the table
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/spf13/afero"

	"github.com/encyc/feishu-table-go/internal/version"
	"github.com/encyc/feishu-table-go/pkg/feishu"
	"github.com/encyc/feishu-table-go/pkg/feishu/tabular"
)

// config is the HCL configuration file schema.
//
// Example:
//
//	app_id     = "cli_xxx"
//	app_secret = "yyy"
//	timeout    = "10s"
//	chunk_size = 500
type config struct {
	AppID     string `hcl:"app_id"`
	AppSecret string `hcl:"app_secret"`
	BaseURL   string `hcl:"base_url,optional"`
	Timeout   string `hcl:"timeout,optional"`
	ChunkSize int    `hcl:"chunk_size,optional"`
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.hcl", "Path to configuration file")
	appToken := flag.String("app-token", "", "Bitable app token")
	tableID := flag.String("table", "", "Bitable table id")
	normalizeHeaders := flag.Bool("normalize-headers", false, "Convert CSV headers to snake_case field names")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Version)
		return 0
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "feishu-table",
		Level: hclog.Info,
	})

	args := flag.Args()
	if len(args) == 0 {
		logger.Error("no command given; expected get-user, import, query, or delete-all")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return 1
	}

	client, err := feishu.New(feishu.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.timeout(),
		ChunkSize: cfg.ChunkSize,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create client", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, canceling", "signal", sig)
		cancel()
	}()

	switch cmd := args[0]; cmd {
	case "get-user":
		if len(args) < 2 {
			logger.Error("usage: get-user <email>")
			return 1
		}
		userID, err := client.GetUserID(ctx, feishu.UserLookup{Email: args[1]})
		if err != nil {
			logger.Error("lookup failed", "error", err)
			return 1
		}
		fmt.Println(userID)

	case "import":
		if len(args) < 2 {
			logger.Error("usage: import <file.csv>")
			return 1
		}
		if err := requireTable(*appToken, *tableID); err != nil {
			logger.Error(err.Error())
			return 1
		}

		source := tabular.NewCSVSource(afero.NewOsFs(), args[1], &tabular.CSVOptions{
			NormalizeHeaders: *normalizeHeaders,
		})
		records, err := source.Records()
		if err != nil {
			logger.Error("failed to read CSV", "error", err)
			return 1
		}

		result, err := client.BatchInsertRecords(ctx, *appToken, *tableID, records, nil)
		if err != nil {
			if result != nil {
				logger.Error("import failed partway",
					"inserted", result.Succeeded, "failed_at", result.FailedAt, "error", err)
			} else {
				logger.Error("import failed", "error", err)
			}
			return 1
		}
		logger.Info("import complete", "inserted", result.Succeeded)

	case "query":
		if err := requireTable(*appToken, *tableID); err != nil {
			logger.Error(err.Error())
			return 1
		}

		it := client.QueryRecords(ctx, *appToken, *tableID, nil)
		enc := json.NewEncoder(os.Stdout)
		count := 0
		for it.Next() {
			rec := it.Record()
			if err := enc.Encode(map[string]any{"record_id": rec.ID, "fields": rec.Fields}); err != nil {
				logger.Error("failed to write record", "error", err)
				return 1
			}
			count++
		}
		if err := it.Err(); err != nil {
			logger.Error("query failed", "error", err)
			return 1
		}
		logger.Info("query complete", "records", count)

	case "delete-all":
		if err := requireTable(*appToken, *tableID); err != nil {
			logger.Error(err.Error())
			return 1
		}
		if err := client.DeleteAllRecords(ctx, *appToken, *tableID); err != nil {
			logger.Error("delete-all failed", "error", err)
			return 1
		}
		logger.Info("all records deleted")

	default:
		logger.Error("unknown command", "command", cmd)
		return 1
	}

	return 0
}

func loadConfig(path string) (*config, error) {
	var cfg config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *config) timeout() time.Duration {
	if c.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0
	}
	return d
}

func requireTable(appToken, tableID string) error {
	if appToken == "" || tableID == "" {
		return fmt.Errorf("-app-token and -table are required for this command")
	}
	return nil
}
