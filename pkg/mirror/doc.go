// Package mirror keeps a subset of a remote search index on disk and routes
// read operations between the remote index and that mirror.
//
// A Client hands out one MirroredIndex per index name. Once mirroring is
// enabled, the data selection queries of the index define which objects a
// sync pulls into the local engine. Syncs and manual builds of every index of
// a client run one at a time on a single background worker.
//
// Read operations follow the request strategy of the index:
//
//   - OnlineOnly queries the remote index.
//   - OfflineOnly queries the mirror.
//   - FallbackOnFailure queries the remote index and answers from the mirror
//     when the remote request fails.
//   - FallbackOnTimeout also queries the mirror when the remote index has not
//     answered within the fallback timeout.
//
// Results of a mirrored index carry the Origin of the gateway that served
// them.
package mirror
