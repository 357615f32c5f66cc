// Package dcs is a client for the JSON web API of a Coherent Research
// DCS v3+ remote metering server.
//
// # Architecture
//
// A Session owns one authenticated connection to the server:
//
//   - All outbound requests are serialized through the session's
//     exclusive-access lock, so no more than one request is ever in
//     flight per session. This protects the shared server from request
//     storms when a session is used from multiple goroutines; callers
//     should not expect parallel speedup from sharing one session.
//   - Rate-limit responses (HTTP 429) are handled transparently: the
//     client waits for the server's advisory delay and retries, so a
//     rate limit never surfaces to the caller as an error.
//   - Large time ranges are split into bounded windows by
//     LargeReadings, fetched sequentially in ascending time order and
//     stitched back into a single ordered result.
//
// # Example Usage
//
//	session, err := dcs.Connect(ctx, "https://energy.example.ac.uk/dcswebapi", user, pass)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.SignOut(context.Background())
//
//	q := dcs.NewReadingsQuery("R839", start, end)
//	res, err := session.LargeReadings(ctx, q, 14*24*time.Hour)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer res.Close()
//	for res.Next() {
//	    r := res.Reading()
//	    // r.Timestamp, r.Value, r.Status
//	}
//	if err := res.Err(); err != nil {
//	    log.Fatal(err)
//	}
//
// Readings results can be fully materialized or streamed record by
// record as the response body arrives; see ReadingsQuery.Stream.
package dcs
