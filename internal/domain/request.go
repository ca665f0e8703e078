package domain

import "time"

// Action names the operation a request selects.
type Action string

const (
	ActionSave            Action = "save"
	ActionUpdate          Action = "update"
	ActionFind            Action = "find"
	ActionFindOne         Action = "findone"
	ActionCount           Action = "count"
	ActionDelete          Action = "delete"
	ActionCommand         Action = "command"
	ActionGetCollections  Action = "getCollections"
	ActionDropCollection  Action = "dropCollection"
	ActionCollectionStats Action = "collectionStats"
)

// Request is the decoded form of an incoming message. Each action has its
// own variant carrying only the fields that action uses.
type Request interface {
	Action() Action
}

// CollectionRequest is implemented by variants that target a collection.
type CollectionRequest interface {
	Request
	CollectionName() string
}

type SaveRequest struct {
	Collection   string `validate:"required,collection_name"`
	Document     Document
	WriteConcern string
}

type UpdateRequest struct {
	Collection   string `validate:"required,collection_name"`
	Criteria     Matcher
	ObjNew       Document `validate:"required"`
	Upsert       bool
	Multi        bool
	WriteConcern string
}

type FindRequest struct {
	Collection string `validate:"required,collection_name"`
	Matcher    Matcher
	Keys       map[string]any
	Sort       map[string]any
	Skip       int64 `validate:"gte=0"`
	Limit      int64
	BatchSize  int `validate:"gte=0"`
	// Timeout is how long an open batch cursor may sit idle. Zero uses the endpoint default.
	Timeout time.Duration `validate:"gte=0"`
}

type FindOneRequest struct {
	Collection string `validate:"required,collection_name"`
	Matcher    Matcher
	Keys       map[string]any
}

type CountRequest struct {
	Collection string `validate:"required,collection_name"`
	Matcher    Matcher
}

type DeleteRequest struct {
	Collection   string `validate:"required,collection_name"`
	Matcher      Matcher
	WriteConcern string
}

type CommandRequest struct {
	Command Command
}

type GetCollectionsRequest struct{}

type DropCollectionRequest struct {
	Collection string `validate:"required,collection_name"`
}

type CollectionStatsRequest struct {
	Collection string `validate:"required,collection_name"`
}

func (SaveRequest) Action() Action            { return ActionSave }
func (UpdateRequest) Action() Action          { return ActionUpdate }
func (FindRequest) Action() Action            { return ActionFind }
func (FindOneRequest) Action() Action         { return ActionFindOne }
func (CountRequest) Action() Action           { return ActionCount }
func (DeleteRequest) Action() Action          { return ActionDelete }
func (CommandRequest) Action() Action         { return ActionCommand }
func (GetCollectionsRequest) Action() Action  { return ActionGetCollections }
func (DropCollectionRequest) Action() Action  { return ActionDropCollection }
func (CollectionStatsRequest) Action() Action { return ActionCollectionStats }

func (r SaveRequest) CollectionName() string            { return r.Collection }
func (r UpdateRequest) CollectionName() string          { return r.Collection }
func (r FindRequest) CollectionName() string            { return r.Collection }
func (r FindOneRequest) CollectionName() string         { return r.Collection }
func (r CountRequest) CollectionName() string           { return r.Collection }
func (r DeleteRequest) CollectionName() string          { return r.Collection }
func (r DropCollectionRequest) CollectionName() string  { return r.Collection }
func (r CollectionStatsRequest) CollectionName() string { return r.Collection }

// Command is an administrative backend command. Text holds the relaxed JSON
// form (e.g. "{ping:1}") and keeps key order; Doc holds an already decoded
// mapping. Exactly one of them is set.
type Command struct {
	Text string
	Doc  Document
}

// IsZero reports whether neither form is set.
func (c Command) IsZero() bool {
	return c.Text == "" && len(c.Doc) == 0
}
