// Package reference lists the instruments a job backfills.
//
// The CoinAPI provider is queried once per run per exchange and includes
// delisted symbols, which venue listing endpoints usually omit. Jobs with a
// static symbol list use the Static provider instead.
package reference
