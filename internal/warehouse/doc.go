// Package warehouse persists validated series into PostgreSQL.
//
// Layout:
//   - one schema per venue: "<dataset>_<venue>"
//   - one table per series: "<kind>_<class>_<resolution>"
//   - rows are appended with COPY (at-least-once); Deduplicate rewrites a
//     table keeping one row per (ticker, start_time)
//
// Creating a schema, table or index that already exists is informational.
// The checkpoint query is an aggregate (max/min/count GROUP BY ticker).
package warehouse
