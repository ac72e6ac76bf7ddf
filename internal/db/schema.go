package db

import "fmt"

const (
	tableCatalogItem = "catalog_item"
	tableIngestJob   = "ingest_job"
)

// SchemaSQL returns the schema definition with an HNSW index of the given
// dimension. Every statement is idempotent.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(`
    -- ==========================================================================
    -- CATALOG ITEMS
    -- ==========================================================================
    -- Record id is the identity key "{year}_{code}"; upserts merge into it.
    DEFINE TABLE IF NOT EXISTS catalog_item SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS key ON catalog_item TYPE string;
    DEFINE FIELD IF NOT EXISTS code ON catalog_item TYPE string;
    DEFINE FIELD IF NOT EXISTS year ON catalog_item TYPE int;
    DEFINE FIELD IF NOT EXISTS description ON catalog_item TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS unit ON catalog_item TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS price_labor ON catalog_item TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS price_material ON catalog_item TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS price_total ON catalog_item TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS chapter ON catalog_item TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS section ON catalog_item TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS page ON catalog_item TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS embedding ON catalog_item TYPE option<array<float>>;

    DEFINE INDEX IF NOT EXISTS catalog_item_key ON catalog_item FIELDS key UNIQUE;
    DEFINE INDEX IF NOT EXISTS catalog_item_code ON catalog_item FIELDS code, year;
    DEFINE INDEX IF NOT EXISTS catalog_item_embedding ON catalog_item FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- INGESTION JOBS
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS ingest_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS status ON ingest_job TYPE string ASSERT $value IN ["processing", "completed", "failed"];
    DEFINE FIELD IF NOT EXISTS progress ON ingest_job TYPE int ASSERT $value >= 0 AND $value <= 100;
    DEFINE FIELD IF NOT EXISTS file_name ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS file_source_ref ON ingest_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS total_items ON ingest_job TYPE int;
    DEFINE FIELD IF NOT EXISTS current_meta ON ingest_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS logs ON ingest_job TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS error ON ingest_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS version ON ingest_job TYPE int;
    DEFINE FIELD IF NOT EXISTS created_at ON ingest_job TYPE datetime;
    DEFINE FIELD IF NOT EXISTS updated_at ON ingest_job TYPE datetime;

    DEFINE INDEX IF NOT EXISTS ingest_job_created ON ingest_job FIELDS created_at;
`, dimension)
}
