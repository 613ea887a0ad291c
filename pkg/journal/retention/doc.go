// Package retention bounds the size of the change journal.
//
// A Pruner removes changes older than the configured number of days and then
// trims the history to a maximum record count. A Scheduler runs the pruner on
// a cron schedule.
package retention
