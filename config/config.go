package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/ainilili/dumploader/consts"
	"github.com/spf13/viper"
)

type PurgeMode string

const (
	PurgeFail     PurgeMode = "fail"
	PurgeNone     PurgeMode = "none"
	PurgeDrop     PurgeMode = "drop"
	PurgeTruncate PurgeMode = "truncate"
	PurgeDelete   PurgeMode = "delete"
)

type ChecksumMode string

const (
	ChecksumSkip ChecksumMode = "skip"
	ChecksumWarn ChecksumMode = "warn"
	ChecksumFail ChecksumMode = "fail"
)

type OptimizeKeys string

const (
	OptimizeKeysPerTable       OptimizeKeys = "per_table"
	OptimizeKeysAfterAllTables OptimizeKeys = "after_all_tables"
	OptimizeKeysSkip           OptimizeKeys = "skip"
)

// Config is the complete loader configuration.
type Config struct {
	Connection ConnectionConfig `mapstructure:"connection"`

	Directory string `mapstructure:"directory"`
	Stream    bool   `mapstructure:"stream"`
	Resume    bool   `mapstructure:"resume"`

	Threads                 int  `mapstructure:"threads"`
	MaxThreadsPerTable      int  `mapstructure:"max_threads_per_table"`
	SchemaThreads           int  `mapstructure:"max_threads_for_schema_creation"`
	IndexThreads            int  `mapstructure:"max_threads_for_index_creation"`
	PostThreads             int  `mapstructure:"max_threads_for_post_creation"`
	MaxConnectionsPerJob    int  `mapstructure:"max_connections_per_job"`
	SerializedTableCreation bool `mapstructure:"serialized_table_creation"`
	QueriesPerTransaction   int  `mapstructure:"queries_per_transaction"`
	Rows                    int  `mapstructure:"rows"`

	TargetDatabase string `mapstructure:"database"`
	SourceDatabase string `mapstructure:"source_db"`
	TablesList     string `mapstructure:"tables_list"`
	OmitFromFile   string `mapstructure:"omit_from_file"`
	Regex          string `mapstructure:"regex"`

	OverwriteTables      bool         `mapstructure:"overwrite_tables"`
	Purge                PurgeMode    `mapstructure:"purge_mode"`
	RetryCount           int          `mapstructure:"retry_count"`
	PurgeFailureNonFatal bool         `mapstructure:"purge_failure_non_fatal"`
	AddIfNotExists       bool         `mapstructure:"append_if_not_exist"`
	Optimize             OptimizeKeys `mapstructure:"optimize_keys"`
	SkipTriggers         bool         `mapstructure:"skip_triggers"`
	SkipPost             bool         `mapstructure:"skip_post"`
	SkipConstraints      bool         `mapstructure:"skip_constraints"`
	SkipIndexes          bool         `mapstructure:"skip_indexes"`
	NoData               bool         `mapstructure:"no_data"`
	NoSchema             bool         `mapstructure:"no_schema"`
	EnableBinlog         bool         `mapstructure:"enable_binlog"`
	SetNames             string       `mapstructure:"set_names"`
	SourceData           bool         `mapstructure:"source_data"`
	IgnoreErrors         []uint16     `mapstructure:"ignore_errors"`
	MaxErrors            uint64       `mapstructure:"max_errors"`
	Checksum             ChecksumMode `mapstructure:"checksum"`

	LogFile      string `mapstructure:"logfile"`
	Verbose      int    `mapstructure:"verbose"`
	ProgressSecs int    `mapstructure:"progress"`
	PMMPath      string `mapstructure:"pmm_path"`
	SummaryFile  string `mapstructure:"summary_file"`
	PprofAddr    string `mapstructure:"pprof_addr"`
}

// ConnectionConfig holds target server parameters.
type ConnectionConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Socket   string `mapstructure:"socket"`
}

// Defaults registers default values on v.
func Defaults(v *viper.Viper) {
	v.SetDefault("connection.host", "localhost")
	v.SetDefault("connection.port", 3306)
	v.SetDefault("connection.user", "root")

	v.SetDefault("threads", consts.DefaultThreads)
	v.SetDefault("max_threads_per_table", consts.DefaultMaxThreadsPerTable)
	v.SetDefault("max_threads_for_schema_creation", 0)
	v.SetDefault("max_threads_for_index_creation", 0)
	v.SetDefault("max_threads_for_post_creation", 1)
	v.SetDefault("max_connections_per_job", 1)
	v.SetDefault("queries_per_transaction", consts.DefaultQueriesPerTransact)
	v.SetDefault("retry_count", consts.DefaultRetryCount)
	v.SetDefault("optimize_keys", string(OptimizeKeysPerTable))
	v.SetDefault("checksum", string(ChecksumWarn))
	v.SetDefault("set_names", "binary")
	v.SetDefault("verbose", 2)
	v.SetDefault("progress", 30)
}

// Load reads the defaults file, DUMPLOADER_* environment variables and any
// flags already bound to v.
func Load(v *viper.Viper, defaultsFile string) (*Config, error) {
	Defaults(v)
	v.SetEnvPrefix("DUMPLOADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if defaultsFile != "" {
		v.SetConfigFile(defaultsFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading defaults file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.applyDerived()
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDerived() {
	if c.Purge == "" {
		if c.OverwriteTables {
			c.Purge = PurgeDrop
		} else {
			c.Purge = PurgeFail
		}
	}
	if c.Threads <= 0 {
		c.Threads = runtime.NumCPU()
	}
	if c.SchemaThreads <= 0 {
		c.SchemaThreads = c.Threads
	}
	if c.SerializedTableCreation {
		c.SchemaThreads = 1
	}
	if c.IndexThreads <= 0 {
		c.IndexThreads = c.Threads
	}
	if c.PostThreads <= 0 {
		c.PostThreads = 1
	}
	if c.MaxThreadsPerTable <= 0 || c.MaxThreadsPerTable > c.Threads {
		c.MaxThreadsPerTable = c.Threads
	}
	if c.MaxConnectionsPerJob < 1 {
		c.MaxConnectionsPerJob = 1
	}
	if c.Resume {
		c.Purge = PurgeNone
	}
}

// Validate checks ranges and enumerations.
func Validate(cfg *Config) error {
	if cfg.Directory == "" && !cfg.Stream {
		return fmt.Errorf("directory cannot be empty unless stream is enabled")
	}
	if cfg.Connection.Socket == "" && (cfg.Connection.Port < 1 || cfg.Connection.Port > 65535) {
		return fmt.Errorf("connection.port must be between 1 and 65535, got %d", cfg.Connection.Port)
	}
	switch cfg.Purge {
	case PurgeFail, PurgeNone, PurgeDrop, PurgeTruncate, PurgeDelete:
	default:
		return fmt.Errorf("purge_mode must be one of fail, none, drop, truncate, delete, got %s", cfg.Purge)
	}
	switch cfg.Checksum {
	case ChecksumSkip, ChecksumWarn, ChecksumFail:
	default:
		return fmt.Errorf("checksum must be one of skip, warn, fail, got %s", cfg.Checksum)
	}
	switch cfg.Optimize {
	case OptimizeKeysPerTable, OptimizeKeysAfterAllTables, OptimizeKeysSkip:
	default:
		return fmt.Errorf("optimize_keys must be one of per_table, after_all_tables, skip, got %s", cfg.Optimize)
	}
	if cfg.QueriesPerTransaction < 0 {
		return fmt.Errorf("queries_per_transaction must be >= 0, got %d", cfg.QueriesPerTransaction)
	}
	if cfg.Rows < 0 {
		return fmt.Errorf("rows must be >= 0, got %d", cfg.Rows)
	}
	if cfg.RetryCount < 0 {
		return fmt.Errorf("retry_count must be >= 0, got %d", cfg.RetryCount)
	}
	if cfg.Verbose < 0 || cfg.Verbose > 3 {
		return fmt.Errorf("verbose must be between 0 and 3, got %d", cfg.Verbose)
	}
	return nil
}

// PoolSize is the number of server connections opened at startup.
func (c *Config) PoolSize() int {
	n := c.Threads
	if c.SchemaThreads > n {
		n = c.SchemaThreads
	}
	if c.IndexThreads > n {
		n = c.IndexThreads
	}
	return n + c.PostThreads
}

// Ignored reports whether a server error code is configured as a warning.
func (c *Config) Ignored(code uint16) bool {
	for _, e := range c.IgnoreErrors {
		if e == code {
			return true
		}
	}
	return false
}
