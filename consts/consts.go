package consts

const (
	LF = byte('\n')
	K  = 1024
	M  = 1024 * K

	FileBufferSize = 64 * K
	// MaxStatementSize bounds a single statement read from a dump file.
	MaxStatementSize = 1024 * M

	SQLSuffix = ".sql"
	DatSuffix = ".dat"

	MetadataFile    = "metadata"
	MetadataPartial = "metadata.partial"
	MetadataHeader  = "metadata.header"
	ResumeFile      = "resume"

	TablespaceSuffix     = "-schema-create-tablespace.sql"
	SchemaCreateSuffix   = "-schema-create.sql"
	SchemaSequenceSuffix = "-schema-sequence.sql"
	SchemaViewSuffix     = "-schema-view.sql"
	SchemaTriggersSuffix = "-schema-triggers.sql"
	SchemaPostSuffix     = "-schema-post.sql"
	SchemaTableSuffix    = "-schema.sql"
	TableMetadataSuffix  = "-metadata"
	ChecksumSuffix       = "-checksum"

	// EndOfFiles is the sentinel pushed after the last filename.
	EndOfFiles = "\x00END"

	DefaultThreads            = 4
	DefaultQueriesPerTransact = 1000
	DefaultRetryCount         = 10
	DefaultMaxThreadsPerTable = 4
	// RefreshTableListEvery is how many table insertions trigger a rebuild of
	// the row-count ordered loading list.
	RefreshTableListEvery = 100
	// PipelineDepth is the number of statements a logical job may have queued
	// on one connection at a time.
	PipelineDepth = 2
)
