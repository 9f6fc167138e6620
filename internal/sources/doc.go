// Package sources retrieves tournament rosters from the upstream
// registration API.
//
// A Fetcher returns either a roster that the caller may trust, including a
// confirmed empty roster, or an error. Callers must never treat a failed
// fetch as an empty roster: doing so would mark every participant as left.
//
// Upstream payloads come in several shapes. ParseRoster recognises them in
// a fixed order:
//   - a top-level JSON array of participant objects
//   - a JSON object carrying the list under "Participants list" or "participants"
//
// Anything else fails with ErrUnrecognizedShape.
package sources
