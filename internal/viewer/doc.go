// Package viewer serves the static web viewer's data endpoints: the cache
// document exactly as persisted and raw image bytes from under the images
// root.
package viewer
