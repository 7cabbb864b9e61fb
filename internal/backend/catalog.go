package backend

// Catalog is the backend procedure catalog: a data-driven table of named
// SQL statement templates, one per dispatcher command, loaded from the
// gateway's YAML configuration rather than hard-coded into the dispatcher
// (SPEC_FULL.md "Backend procedure catalog as configuration, not code").
// An operator can repoint a procedure name to a different extension
// version without a rebuild.
//
// Templates containing "%s" are substituted by the caller (literal string
// replacement, e.g. a schema-qualified collection name) before Prepare;
// every other template is used as a literal parameterized query with `$1`.
// `%s`-substitution happens once per call site, never cached across calls,
// since the substituted value is part of the statement text itself.
type Catalog struct {
	// Auth
	AuthenticateWithScramSHA256 string `yaml:"authenticate_with_scram_sha256"`
	SaltAndIterations           string `yaml:"salt_and_iterations"`
	AuthenticateWithToken       string `yaml:"authenticate_with_token"`

	// Dynamic configuration
	PgSettings     string `yaml:"pg_settings"`
	PgIsInRecovery string `yaml:"pg_is_in_recovery"`

	// Connection setup
	SetSearchPathAndTimeout string `yaml:"set_search_path_and_timeout"`

	// Cursor
	CursorGetMore string `yaml:"cursor_get_more"`

	// Schema / data-description
	CreateCollectionView string `yaml:"create_collection_view"`
	DropDatabase         string `yaml:"drop_database"`
	DropCollection       string `yaml:"drop_collection"`
	ShardCollection      string `yaml:"shard_collection"`
	UnshardCollection    string `yaml:"unshard_collection"`
	ReshardCollection    string `yaml:"reshard_collection"`
	RenameCollection     string `yaml:"rename_collection"`
	CollMod              string `yaml:"coll_mod"`

	// Data management
	Delete                   string `yaml:"delete"`
	FindCursorFirstPage      string `yaml:"find_cursor_first_page"`
	Insert                   string `yaml:"insert"`
	AggregateCursorFirstPage string `yaml:"aggregate_cursor_first_page"`
	ProcessUpdate            string `yaml:"process_update"`
	ListDatabases            string `yaml:"list_databases"`
	ListCollections          string `yaml:"list_collections"`
	Validate                 string `yaml:"validate"`
	FindAndModify            string `yaml:"find_and_modify"`
	DistinctQuery            string `yaml:"distinct_query"`
	CountQuery               string `yaml:"count_query"`
	CollStats                string `yaml:"coll_stats"`
	DbStats                  string `yaml:"db_stats"`
	CurrentOp                string `yaml:"current_op"`
	GetParameter             string `yaml:"get_parameter"`
	Compact                  string `yaml:"compact"`

	// Indexing
	CreateIndexesBackground     string `yaml:"create_indexes_background"`
	CheckBuildIndexStatus       string `yaml:"check_build_index_status"`
	ReIndex                     string `yaml:"re_index"`
	DropIndexes                 string `yaml:"drop_indexes"`
	ListIndexesCursorFirstPage  string `yaml:"list_indexes_cursor_first_page"`

	// Transactions
	BeginTransaction  string `yaml:"begin_transaction"`
	CommitTransaction string `yaml:"commit_transaction"`
	RollbackTransaction string `yaml:"rollback_transaction"`

	// Users / roles
	CreateUser string `yaml:"create_user"`
	DropUser   string `yaml:"drop_user"`
	UpdateUser string `yaml:"update_user"`
	UsersInfo  string `yaml:"users_info"`

	// Version / topology
	ExtensionVersions string `yaml:"extension_versions"`
}

// FillDefaults replaces any blank procedure name in c with the
// corresponding entry from Default(), so a config file's catalog section
// only needs to list the procedures it overrides rather than repeat the
// full table.
func (c *Catalog) FillDefaults() {
	d := Default()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&c.AuthenticateWithScramSHA256, d.AuthenticateWithScramSHA256)
	fill(&c.SaltAndIterations, d.SaltAndIterations)
	fill(&c.AuthenticateWithToken, d.AuthenticateWithToken)
	fill(&c.PgSettings, d.PgSettings)
	fill(&c.PgIsInRecovery, d.PgIsInRecovery)
	fill(&c.SetSearchPathAndTimeout, d.SetSearchPathAndTimeout)
	fill(&c.CursorGetMore, d.CursorGetMore)
	fill(&c.CreateCollectionView, d.CreateCollectionView)
	fill(&c.DropDatabase, d.DropDatabase)
	fill(&c.DropCollection, d.DropCollection)
	fill(&c.ShardCollection, d.ShardCollection)
	fill(&c.UnshardCollection, d.UnshardCollection)
	fill(&c.ReshardCollection, d.ReshardCollection)
	fill(&c.RenameCollection, d.RenameCollection)
	fill(&c.CollMod, d.CollMod)
	fill(&c.Delete, d.Delete)
	fill(&c.FindCursorFirstPage, d.FindCursorFirstPage)
	fill(&c.Insert, d.Insert)
	fill(&c.AggregateCursorFirstPage, d.AggregateCursorFirstPage)
	fill(&c.ProcessUpdate, d.ProcessUpdate)
	fill(&c.ListDatabases, d.ListDatabases)
	fill(&c.ListCollections, d.ListCollections)
	fill(&c.Validate, d.Validate)
	fill(&c.FindAndModify, d.FindAndModify)
	fill(&c.DistinctQuery, d.DistinctQuery)
	fill(&c.CountQuery, d.CountQuery)
	fill(&c.CollStats, d.CollStats)
	fill(&c.DbStats, d.DbStats)
	fill(&c.CurrentOp, d.CurrentOp)
	fill(&c.GetParameter, d.GetParameter)
	fill(&c.Compact, d.Compact)
	fill(&c.CreateIndexesBackground, d.CreateIndexesBackground)
	fill(&c.CheckBuildIndexStatus, d.CheckBuildIndexStatus)
	fill(&c.ReIndex, d.ReIndex)
	fill(&c.DropIndexes, d.DropIndexes)
	fill(&c.ListIndexesCursorFirstPage, d.ListIndexesCursorFirstPage)
	fill(&c.BeginTransaction, d.BeginTransaction)
	fill(&c.CommitTransaction, d.CommitTransaction)
	fill(&c.RollbackTransaction, d.RollbackTransaction)
	fill(&c.CreateUser, d.CreateUser)
	fill(&c.DropUser, d.DropUser)
	fill(&c.UpdateUser, d.UpdateUser)
	fill(&c.UsersInfo, d.UsersInfo)
	fill(&c.ExtensionVersions, d.ExtensionVersions)
}

// Default returns a catalog populated with the canonical documentdb
// extension procedure names, used when the configuration file omits the
// catalog section (the common case — operators only override entries they
// need to repoint).
func Default() Catalog {
	return Catalog{
		AuthenticateWithScramSHA256: "SELECT documentdb_api.authenticate_with_scram_sha256($1, $2, $3)",
		SaltAndIterations:           "SELECT * FROM documentdb_api.get_salt_and_iterations($1)",
		AuthenticateWithToken:       "SELECT documentdb_api.authenticate_with_token($1, $2)",

		PgSettings:     "SELECT name, setting FROM pg_settings WHERE name LIKE $1",
		PgIsInRecovery: "SELECT pg_is_in_recovery()",

		SetSearchPathAndTimeout: "SET search_path TO documentdb_api,documentdb_core; SET statement_timeout = %s; SET idle_in_transaction_session_timeout = %s",

		CursorGetMore: "SELECT documentdb_api.cursor_get_more($1, $2, $3)",

		CreateCollectionView: "SELECT documentdb_api.create_collection_view($1, $2)",
		DropDatabase:         "SELECT documentdb_api.drop_database($1)",
		DropCollection:       "SELECT documentdb_api.drop_collection($1, $2)",
		ShardCollection:      "SELECT documentdb_api.shard_collection($1, $2, $3)",
		UnshardCollection:    "SELECT documentdb_api.unshard_collection($1, $2)",
		ReshardCollection:    "SELECT documentdb_api.reshard_collection($1, $2, $3)",
		RenameCollection:     "SELECT documentdb_api.rename_collection($1, $2, $3)",
		CollMod:              "SELECT documentdb_api.coll_mod($1, $2, $3)",

		Delete:                   "SELECT * FROM documentdb_api.delete($1, $2, $3, NULL)",
		FindCursorFirstPage:      "SELECT documentdb_api.find_cursor_first_page($1, $2)",
		Insert:                   "SELECT * FROM documentdb_api.insert($1, $2, $3, NULL)",
		AggregateCursorFirstPage: "SELECT documentdb_api.aggregate_cursor_first_page($1, $2)",
		ProcessUpdate:            "SELECT * FROM documentdb_api.update($1, $2, $3, NULL)",
		ListDatabases:            "SELECT documentdb_api.list_databases($1)",
		ListCollections:          "SELECT documentdb_api.list_collections_cursor_first_page($1, $2)",
		Validate:                 "SELECT documentdb_api.validate($1, $2)",
		FindAndModify:            "SELECT documentdb_api.find_and_modify($1, $2)",
		DistinctQuery:            "SELECT documentdb_api.distinct_query($1, $2)",
		CountQuery:               "SELECT documentdb_api.count_query($1, $2)",
		CollStats:                "SELECT documentdb_api.coll_stats($1, $2)",
		DbStats:                  "SELECT documentdb_api.db_stats($1, $2)",
		CurrentOp:                "SELECT documentdb_api.current_op($1)",
		GetParameter:             "SELECT documentdb_api.get_parameter($1, $2)",
		Compact:                  "SELECT documentdb_api.compact($1, $2)",

		CreateIndexesBackground:    "SELECT documentdb_api.create_indexes_background($1, $2)",
		CheckBuildIndexStatus:      "SELECT documentdb_api.check_build_index_status($1)",
		ReIndex:                    "SELECT documentdb_api.re_index($1, $2)",
		DropIndexes:                "SELECT documentdb_api.drop_indexes($1, $2)",
		ListIndexesCursorFirstPage: "SELECT documentdb_api.list_indexes_cursor_first_page($1, $2)",

		BeginTransaction:    "BEGIN",
		CommitTransaction:   "COMMIT",
		RollbackTransaction: "ROLLBACK",

		CreateUser: "SELECT documentdb_api.create_user($1, $2, $3)",
		DropUser:   "SELECT documentdb_api.drop_user($1)",
		UpdateUser: "SELECT documentdb_api.update_user($1, $2)",
		UsersInfo:  "SELECT documentdb_api.users_info($1)",

		ExtensionVersions: "SELECT extname, extversion FROM pg_extension WHERE extname LIKE 'documentdb%'",
	}
}
