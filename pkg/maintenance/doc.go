// Package maintenance runs the scheduled identity housekeeping jobs:
// purging expired session records and resetting stale failed-login
// counters.
package maintenance
