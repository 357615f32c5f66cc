// Package internal holds the supporting packages of the godcs module.
//
// # Architecture
//
// The module is structured into several key packages:
//   - middleware: http.RoundTripper chain shared by the DCS client
//   - archive: PostgreSQL persistence and incremental channel sync
//   - config: YAML configuration with environment expansion
//   - scheduler: cron-driven background sync runs
//
// Key Features
//
//   - Historical Data:
//     The dcsarchive daemon can backfill a configurable depth of
//     history and keeps it current through scheduled syncs.
//
//   - Windowed Retrieval:
//     Large time ranges are fetched in bounded windows and stitched
//     into a single ordered sequence, so server-side query limits
//     never surface to callers.
//
//   - Observability:
//     Requests carry correlation ids, structured logs record every
//     exchange, and Prometheus counters track request volume and
//     rate-limit waits.
//
// For more information about specific packages, see their respective
// documentation.
package internal
