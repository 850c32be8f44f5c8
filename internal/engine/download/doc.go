// Package download is a local [engine.DownloadEngine]: a bounded pool of HTTP
// transfers into a downloads directory, persisted through a [Store].
//
// Pause keeps the partial file and resumes with a Range request; cancel discards it.
// Failed transfers are retried with linear backoff when auto retry is configured.
// A file lock on the directory keeps two processes from writing the same files.
package download
