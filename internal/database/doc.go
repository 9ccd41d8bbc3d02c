// Package database provides the PostgreSQL connection pool for the warehouse.
//
// One pool is opened per process and shared by every job; each job writes to
// its own schema and tables.
package database
