package model

// SchemaState is the lifecycle position of a database or table. It only
// moves forward, except that a failed purge may move a table from Creating
// back to NotCreated for another attempt.
type SchemaState int

const (
	NotFound SchemaState = iota
	// NotFound2 is reserved and never assigned.
	NotFound2
	NotCreated
	Creating
	Created
	DataDone
	IndexEnqueued
	AllDone
)

var schemaStateNames = map[SchemaState]string{
	NotFound:      "NOT_FOUND",
	NotFound2:     "NOT_FOUND_2",
	NotCreated:    "NOT_CREATED",
	Creating:      "CREATING",
	Created:       "CREATED",
	DataDone:      "DATA_DONE",
	IndexEnqueued: "INDEX_ENQUEUED",
	AllDone:       "ALL_DONE",
}

func (s SchemaState) String() string {
	if n, ok := schemaStateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// ObjectType names the kind of server object a job creates or fills.
type ObjectType int

const (
	ObjectDatabase ObjectType = iota
	ObjectTablespace
	ObjectTable
	ObjectSequence
	ObjectView
	ObjectTrigger
	ObjectPost
	ObjectData
	ObjectIndex
	ObjectConstraint
)

func (o ObjectType) String() string {
	switch o {
	case ObjectDatabase:
		return "database"
	case ObjectTablespace:
		return "tablespace"
	case ObjectTable:
		return "table"
	case ObjectSequence:
		return "sequence"
	case ObjectView:
		return "view"
	case ObjectTrigger:
		return "trigger"
	case ObjectPost:
		return "post"
	case ObjectData:
		return "data"
	case ObjectIndex:
		return "index"
	case ObjectConstraint:
		return "constraint"
	}
	return "unknown"
}
