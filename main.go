package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ainilili/dumploader/config"
	"github.com/ainilili/dumploader/loader"
	"github.com/ainilili/dumploader/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"host":                            "connection.host",
	"port":                            "connection.port",
	"user":                            "connection.user",
	"password":                        "connection.password",
	"socket":                          "connection.socket",
	"directory":                       "directory",
	"stream":                          "stream",
	"resume":                          "resume",
	"threads":                         "threads",
	"max-threads-per-table":           "max_threads_per_table",
	"max-threads-for-schema-creation": "max_threads_for_schema_creation",
	"max-threads-for-index-creation":  "max_threads_for_index_creation",
	"max-threads-for-post-creation":   "max_threads_for_post_creation",
	"max-connections-per-job":         "max_connections_per_job",
	"serialized-table-creation":       "serialized_table_creation",
	"queries-per-transaction":         "queries_per_transaction",
	"rows":                            "rows",
	"database":                        "database",
	"source-db":                       "source_db",
	"tables-list":                     "tables_list",
	"omit-from-file":                  "omit_from_file",
	"regex":                           "regex",
	"overwrite-tables":                "overwrite_tables",
	"purge-mode":                      "purge_mode",
	"retry-count":                     "retry_count",
	"purge-failure-non-fatal":         "purge_failure_non_fatal",
	"append-if-not-exist":             "append_if_not_exist",
	"optimize-keys":                   "optimize_keys",
	"skip-triggers":                   "skip_triggers",
	"skip-post":                       "skip_post",
	"skip-constraints":                "skip_constraints",
	"skip-indexes":                    "skip_indexes",
	"no-data":                         "no_data",
	"no-schema":                       "no_schema",
	"enable-binlog":                   "enable_binlog",
	"set-names":                       "set_names",
	"source-data":                     "source_data",
	"ignore-errors":                   "ignore_errors",
	"max-errors":                      "max_errors",
	"checksum":                        "checksum",
	"logfile":                         "logfile",
	"verbose":                         "verbose",
	"progress":                        "progress",
	"pmm-path":                        "pmm_path",
	"summary-file":                    "summary_file",
	"pprof-addr":                      "pprof_addr",
}

func main() {
	v := viper.New()
	var defaultsFile string

	rootCmd := &cobra.Command{
		Use:           "dumploader",
		Short:         "Parallel loader for MySQL logical dumps",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, defaultsFile)
			if err != nil {
				return err
			}
			log.Init(log.Level(cfg.Verbose), cfg.LogFile)
			defer log.Close()

			// SIGINT and SIGTERM are handled by the loader itself.
			return loader.Run(context.Background(), cfg)
		},
	}

	f := rootCmd.Flags()
	f.StringVar(&defaultsFile, "defaults-file", "", "configuration file (yaml, toml or ini)")
	f.StringP("host", "h", "localhost", "target server host")
	f.IntP("port", "P", 3306, "target server port")
	f.StringP("user", "u", "root", "user name")
	f.StringP("password", "p", "", "password")
	f.StringP("socket", "S", "", "unix socket, overrides host and port")
	f.StringP("directory", "d", "", "dump directory")
	f.Bool("stream", false, "read the dump from standard input")
	f.Bool("resume", false, "load only the data files listed in the resume file")
	f.IntP("threads", "t", 4, "data loading connections")
	f.Int("max-threads-per-table", 4, "concurrent data files per table")
	f.Int("max-threads-for-schema-creation", 0, "schema connections, 0 for threads")
	f.Int("max-threads-for-index-creation", 0, "index connections, 0 for threads")
	f.Int("max-threads-for-post-creation", 1, "connections for constraints, views, triggers and routines")
	f.Int("max-connections-per-job", 1, "connections a single data file may use")
	f.Bool("serialized-table-creation", false, "create tables one at a time")
	f.IntP("queries-per-transaction", "q", 1000, "statements per transaction, 0 for autocommit")
	f.IntP("rows", "r", 0, "split INSERT statements into this many rows")
	f.StringP("database", "B", "", "restore every object into this database")
	f.StringP("source-db", "s", "", "restore only this database")
	f.StringP("tables-list", "T", "", "comma separated db.table list to restore")
	f.StringP("omit-from-file", "O", "", "file of db.table entries to skip")
	f.StringP("regex", "x", "", "restore only db.table names matching this expression")
	f.BoolP("overwrite-tables", "o", false, "drop existing tables")
	f.String("purge-mode", "", "fail, none, drop, truncate or delete")
	f.Int("retry-count", 10, "retries for lock errors while purging")
	f.Bool("purge-failure-non-fatal", false, "keep going when a purge fails")
	f.Bool("append-if-not-exist", false, "add IF NOT EXISTS to CREATE TABLE")
	f.String("optimize-keys", "per_table", "per_table, after_all_tables or skip")
	f.Bool("skip-triggers", false, "do not restore triggers")
	f.Bool("skip-post", false, "do not restore routines and events")
	f.Bool("skip-constraints", false, "do not restore foreign keys")
	f.Bool("skip-indexes", false, "do not restore secondary indexes")
	f.Bool("no-data", false, "restore schema only")
	f.Bool("no-schema", false, "restore data only")
	f.BoolP("enable-binlog", "e", false, "write the restore to the binary log")
	f.String("set-names", "binary", "character set for SET NAMES")
	f.Bool("source-data", false, "configure replication from the dump coordinates")
	f.String("ignore-errors", "", "comma separated server error codes counted as warnings")
	f.Uint64("max-errors", 0, "abort after this many errors, 0 for no limit")
	f.String("checksum", "warn", "skip, warn or fail")
	f.StringP("logfile", "L", "", "log to this file instead of stderr")
	f.IntP("verbose", "v", 2, "0 errors, 1 warnings, 2 info, 3 debug")
	f.Int("progress", 30, "seconds between progress lines")
	f.String("pmm-path", "", "write node-exporter metrics to this file")
	f.String("summary-file", "", "write a YAML summary to this file")
	f.String("pprof-addr", "", "serve profiles on this address")
	f.Bool("help", false, "help")

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, f.Lookup(name)); err != nil {
			panic(err)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dumploader: %v\n", err)
		if errors.Is(err, loader.ErrFatal) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
