// Package archive keeps a gzipped CSV copy of every flushed chunk in object
// storage (S3 or MinIO), so a warehouse table can be rebuilt without
// re-fetching from venues.
//
// Objects are keyed "<prefix>/<table>/<ticker>/<first>_<last>.csv.gz" with
// compact UTC timestamps.
package archive
