// Package validate enforces the fixed-frequency grid on normalized series:
// timestamp alignment, duplicate removal, anomalous time-of-day removal and
// gap filling. Gap rows carry no numeric values; ticker and categorical fields
// are carried forward from the previous row.
package validate
