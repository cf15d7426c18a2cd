// Package middleware exposes HTTP guards that gate handlers on the engine's
// current session snapshot.
//
// The engine holds one device session, so the guards are meant for local
// surfaces such as an embedded admin console or a loopback companion API.
// A guard never signs anyone in; it only reads the published snapshot and
// injects it into the request context.
package middleware
