// Package cloudobjects is the client-side coordination layer for a
// cloud-object backend: it manages session credentials, dispatches
// authenticated remote-object calls with retry semantics, and fans out
// realtime state updates to subscribers.
//
// Session lifecycle:
//   - A Credential (access/refresh token pair plus decoded claims and the
//     server-vs-local clock skew captured at issuance) lives in durable
//     Storage, one per project. Expiry checks always apply the cached skew
//     plus a fixed guard window, never the raw local clock.
//   - Concurrent callers that find the access token expired share a single
//     in-flight refresh; a refresh rejected by the server signs the session
//     out, while a pure transport failure keeps the credential for when
//     connectivity returns.
//   - Session transitions (signed in, signed out, auth failed, connection
//     failed) are announced through an explicitly activated broadcaster.
//
// Remote calls:
//   - Endpoints are resolved from a logical operation plus parameters; calls
//     attach a bearer token freshly obtained before every attempt and retry
//     with exponential backoff only on the overloaded status code.
//
// Realtime state:
//   - Each cloud object exposes role, user, and public state partitions. At
//     most one underlying push listener is opened per partition regardless of
//     subscriber count; listeners for an object close together when the
//     object registry is released, completing every subscriber stream.
package cloudobjects
