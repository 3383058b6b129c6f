// Package artifact persists fetched bodies.
//
// Bodies are written to a gocloud.dev blob bucket:
//   - a plain directory path opens a fileblob bucket rooted there
//   - a URL opens the driver registered for its scheme: file://, mem://,
//     s3:// and gs://
//
// Names without an extension get one derived from the response Content-Type.
package artifact
