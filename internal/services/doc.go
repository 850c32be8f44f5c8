// Package services talks to the catalog: a Subsonic-compatible music server.
//
// [SubsonicService] is the raw REST client (JSON responses, salted token auth, rate limited).
// [CachedCatalog] fronts it with a SQLite cache so repeated lookups are local.
// [TrackItems] turns catalog tracks into engine descriptors with stream and artwork URLs.
//
// Both client types satisfy [Catalog].
package services
